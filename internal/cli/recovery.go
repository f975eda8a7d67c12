package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hxuan190/dex-aggregator/internal/domain"
)

func (a *app) pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect and resume transfers whose swap call never completed",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.stack()
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.Aggregator.PendingTransfers()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.jsonOutput {
				if recs == nil {
					recs = []*domain.PendingTransferRecord{}
				}
				return writeJSON(w, recs)
			}
			if len(recs) == 0 {
				color.New(color.FgGreen).Fprintln(w, "No pending transfers.")
				return nil
			}
			fmt.Fprintf(w, "\n%d pending transfer(s):\n", len(recs))
			for _, r := range recs {
				fmt.Fprintf(w, "\n  %s\n", color.CyanString(r.Key))
				fmt.Fprintf(w, "    Dex:        %s\n", r.DexID)
				fmt.Fprintf(w, "    Pair:       %s -> %s\n", r.InputToken, r.OutputToken)
				fmt.Fprintf(w, "    Amount:     %s (min out %s)\n", r.Amount, r.MinAmountOut)
				fmt.Fprintf(w, "    Block:      %s\n", r.BlockIndex)
				fmt.Fprintf(w, "    Age:        %s\n", time.Since(r.Timestamp).Truncate(time.Second))
			}
			fmt.Fprintf(w, "\nResume one with:\n")
			color.New(color.FgCyan).Fprintln(w, "  swapctl pending resume <key>")
			return nil
		},
	}

	resume := &cobra.Command{
		Use:   "resume <key>",
		Short: "Replay the swap call of a pending transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.stack()
			if err != nil {
				return err
			}
			defer st.Close()

			w := cmd.OutOrStdout()
			res, err := st.Aggregator.ResumePending(cmd.Context(), args[0], func(p domain.SwapProgress) {
				if !a.jsonOutput {
					fmt.Fprintln(w, progressLine(p))
				}
			})
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(w, res)
			}
			if res.Success {
				fmt.Fprintf(w, "\n%s received %s base units\n", color.GreenString("✓ Resumed:"), res.AmountOut)
				return nil
			}
			fmt.Fprintf(w, "\n%s %s\n", color.RedString("✗ Resume failed:"), res.Error)
			return fmt.Errorf("resume %s: %s", args[0], res.Error)
		},
	}

	cmd.AddCommand(list, resume)
	return cmd
}

func (a *app) claimsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Inspect and retry swap proceeds left to claim",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List outstanding claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.stack()
			if err != nil {
				return err
			}
			defer st.Close()

			claims, err := st.Aggregator.OutstandingClaims()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.jsonOutput {
				if claims == nil {
					claims = []domain.OutstandingClaim{}
				}
				return writeJSON(w, claims)
			}
			if len(claims) == 0 {
				color.New(color.FgGreen).Fprintln(w, "No outstanding claims.")
				return nil
			}
			for _, c := range claims {
				fmt.Fprintf(w, "  %-10s %-12s attempts=%d %s\n", c.DexID, color.CyanString(c.ID), c.Attempts, color.RedString(c.LastError))
			}
			return nil
		},
	}

	retry := &cobra.Command{
		Use:   "retry",
		Short: "Retry every outstanding claim",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.stack()
			if err != nil {
				return err
			}
			defer st.Close()

			stop := a.spin(" Retrying claims...")
			settled, retryErr := st.Aggregator.RetryClaims(cmd.Context())
			stop()
			left, err := st.Aggregator.OutstandingClaims()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := writeJSON(w, map[string]any{"settled": settled, "outstanding": len(left)}); err != nil {
					return err
				}
				return retryErr
			}
			ids := make([]string, 0, len(settled))
			for id := range settled {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(w, "  %-10s settled %d\n", id, settled[id])
			}
			if len(left) > 0 {
				color.New(color.FgYellow).Fprintf(w, "%d claim(s) still outstanding\n", len(left))
			} else {
				color.New(color.FgGreen).Fprintln(w, "All claims settled.")
			}
			return retryErr
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}
