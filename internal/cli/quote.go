package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/dex-aggregator/internal/aggregator"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
)

type quoteFlags struct {
	slippageBps uint16
	dexIDs      []string
	standard    string
	split       bool
}

func (f *quoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint16Var(&f.slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
	cmd.Flags().StringSliceVar(&f.dexIDs, "dex", nil, "Restrict quoting to these dex ids")
	cmd.Flags().StringVar(&f.standard, "standard", "", "Preferred token standard (ICRC1 or ICRC2)")
	cmd.Flags().BoolVar(&f.split, "split", false, "Also try splitting between the two best dexes")
}

// order is a parsed "<amount> <input-ledger> <output-ledger>" triple.
type order struct {
	in, out *domain.TokenInfo
	amount  *big.Int
}

func resolveOrder(ctx context.Context, src dex.TokenSource, args []string) (*order, error) {
	in, out, err := dex.TokenPair(ctx, src, args[1], args[2])
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(args[0], in.Decimals)
	if err != nil {
		return nil, err
	}
	return &order{in: in, out: out, amount: amount}, nil
}

func (f *quoteFlags) params(o *order, defaultSlippage float64) aggregator.QuoteParams {
	slippage := defaultSlippage
	if f.slippageBps > 0 {
		slippage = float64(f.slippageBps) / 10000
	}
	return aggregator.QuoteParams{
		InputToken:        o.in.LedgerID,
		OutputToken:       o.out.LedgerID,
		Amount:            o.amount,
		Slippage:          slippage,
		PreferredStandard: domain.Standard(f.standard),
		DexIDs:            f.dexIDs,
	}
}

func (a *app) quoteCmd() *cobra.Command {
	flags := &quoteFlags{}
	cmd := &cobra.Command{
		Use:   "quote <amount> <input-ledger> <output-ledger>",
		Short: "Compare quotes from every enabled dex",
		Args:  cobra.ExactArgs(3),
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

			stop := a.spin(" Fetching quotes...")
			best, err := st.Aggregator.GetBestQuote(ctx, flags.params(o, st.Aggregator.Slippage()), flags.split)
			stop()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(w, best)
			}
			if len(best.Quotes) == 0 {
				color.New(color.FgYellow).Fprintln(w, "No dex returned a quote for this pair.")
				return nil
			}
			fmt.Fprintf(w, "\nQuotes for %s -> %s\n", formatAmount(o.amount, o.in), o.out.Symbol)
			rank := 1
			if best.Split != nil {
				printQuote(w, rank, best.Split, o.in, o.out)
				rank++
			}
			for _, q := range best.Quotes {
				printQuote(w, rank, q, o.in, o.out)
				rank++
			}
			fmt.Fprintln(w)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) splitCmd() *cobra.Command {
	var (
		flags      = &quoteFlags{}
		dexA, dexB string
	)
	cmd := &cobra.Command{
		Use:   "split <amount> <input-ledger> <output-ledger>",
		Short: "Search the best distribution of an order between two dexes",
		Args:  cobra.ExactArgs(3),
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
			flags.dexIDs = []string{dexA, dexB}
			qp := flags.params(o, st.Aggregator.Slippage())

			stop := a.spin(" Quoting both dexes...")
			quotes, err := st.Aggregator.GetQuotes(ctx, qp)
			stop()
			if err != nil {
				return err
			}
			qa, qb := findQuote(quotes, dexA), findQuote(quotes, dexB)
			if qa == nil || qb == nil {
				return fmt.Errorf("%w: both %s and %s must quote the pair", dex.ErrQuoteFailed, dexA, dexB)
			}

			w := cmd.OutOrStdout()
			p := aggregator.SplitParams{
				InputToken:  o.in.LedgerID,
				OutputToken: o.out.LedgerID,
				TotalAmount: o.amount,
				Slippage:    qp.Slippage,
				DexA:        dexA,
				DexB:        dexB,
				StandardA:   qa.Standard,
				StandardB:   qb.Standard,
			}
			if !a.jsonOutput {
				p.OnProgress = func(best *aggregator.Distribution) {
					fmt.Fprintf(w, "  best so far: %3d%% to %s -> %s\n", best.Distribution, dexB, formatAmount(best.TotalOut, o.out))
				}
			}
			res, err := st.Aggregator.FindBestSplit(ctx, p)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(w, res)
			}

			fmt.Fprintf(w, "\nTested distributions (%% to %s):\n", dexB)
			for _, d := range res.Distributions() {
				line := fmt.Sprintf("  %3d%%  %s", d, formatAmount(res.Tested[d], o.out))
				if d == res.BestDistribution {
					line = color.GreenString(line + "  <- best")
				}
				fmt.Fprintln(w, line)
			}
			fmt.Fprintf(w, "\nBest: %d%% %s / %d%% %s for %s after %d iterations\n\n",
				100-res.BestDistribution, dexA, res.BestDistribution, dexB,
				color.GreenString(formatAmount(res.BestAmount, o.out)), res.Iterations)
			return nil
		},
	}
	cmd.Flags().Uint16Var(&flags.slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
	cmd.Flags().StringVar(&dexA, "dex-a", "icpswap", "Dex taking the remainder of the order")
	cmd.Flags().StringVar(&dexB, "dex-b", "kongswap", "Dex whose share is searched")
	return cmd
}

func findQuote(quotes []*domain.SwapQuote, dexID string) *domain.SwapQuote {
	for _, q := range quotes {
		if q.DexID == dexID {
			return q
		}
	}
	return nil
}

var errAborted = errors.New("swap aborted")
