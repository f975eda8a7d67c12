package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
)

func (a *app) swapCmd() *cobra.Command {
	var (
		flags     = &quoteFlags{}
		noConfirm bool
		minOut    string
	)
	cmd := &cobra.Command{
		Use:   "swap <amount> <input-ledger> <output-ledger>",
		Short: "Execute a swap through the best quote",
		Long: `Quote the order, show the best route and execute it after confirmation.

Progress is printed step by step. Use --split to allow a two-dex split and
--min-out to refuse routes that would deliver less than a floor.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.stack()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			o, err := resolveOrder(ctx, st.Tokens, args)
			if err != nil {
				return err
			}
			qp := flags.params(o, st.Aggregator.Slippage())

			stop := a.spin(" Fetching quotes...")
			best, err := st.Aggregator.GetBestQuote(ctx, qp, flags.split)
			stop()
			if err != nil {
				return err
			}
			q := best.Best()
			if q == nil {
				return fmt.Errorf("%w: no dex returned a quote", dex.ErrNoPoolForPair)
			}
			if minOut != "" {
				floor, err := parseAmount(minOut, o.out.Decimals)
				if err != nil {
					return err
				}
				if q.ExpectedOutput.Cmp(floor) < 0 {
					return fmt.Errorf("%w: best route delivers %s, below %s", dex.ErrInvalidQuote,
						formatAmount(q.ExpectedOutput, o.out), formatAmount(floor, o.out))
				}
			}

			w := cmd.OutOrStdout()
			if !a.jsonOutput {
				printQuote(w, 1, q, o.in, o.out)
				fmt.Fprintln(w)
			}
			if !noConfirm && !a.jsonOutput {
				fmt.Fprint(w, "Proceed with this swap? [y/N]: ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if ans := strings.ToLower(strings.TrimSpace(answer)); ans != "y" && ans != "yes" {
					color.New(color.FgYellow).Fprintln(w, "Swap cancelled.")
					return errAborted
				}
			}

			var events []domain.SwapProgress
			onProgress := func(p domain.SwapProgress) {
				if a.jsonOutput {
					events = append(events, p)
					return
				}
				fmt.Fprintln(w, progressLine(p))
			}
			slippage := qp.Slippage
			res, err := st.Aggregator.Swap(ctx, aggregator.SwapParams{
				Quote:      q,
				Slippage:   &slippage,
				OnProgress: onProgress,
			})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(w, map[string]any{"quote": q, "progress": events, "result": res})
			}
			printResult(w, res, o.out)
			if !res.Success {
				return fmt.Errorf("%w: %s", dex.ErrSwapFailed, res.Error)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&minOut, "min-out", "", "Refuse routes whose expected output is below this amount")
	return cmd
}
