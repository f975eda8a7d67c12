package cli

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
)

// parseAmount turns a human amount such as "1.5" into base units.
func parseAmount(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	units := dex.FromUnits(d, decimals)
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q is below one base unit", s)
	}
	return units, nil
}

func formatAmount(amount *big.Int, token *domain.TokenInfo) string {
	return fmt.Sprintf("%s %s", dex.ToUnits(amount, token.Decimals).String(), token.Symbol)
}

func formatImpact(impact float64) string {
	sev := dex.GetPriceImpactSeverity(dex.ImpactBps(impact))
	text := fmt.Sprintf("%.2f%% (%s)", impact*100, sev)
	switch sev {
	case dex.SeverityNone, dex.SeverityLow:
		return color.GreenString(text)
	case dex.SeverityModerate:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

func quoteTitle(q *domain.SwapQuote) string {
	if !q.IsSplitQuote || len(q.Legs) != 2 {
		return fmt.Sprintf("%s (%s)", q.DexName, q.DexID)
	}
	return fmt.Sprintf("Split %d%% %s / %d%% %s",
		100-q.Distribution, q.Legs[0].DexName, q.Distribution, q.Legs[1].DexName)
}

func printQuote(w io.Writer, rank int, q *domain.SwapQuote, in, out *domain.TokenInfo) {
	fmt.Fprintf(w, "\n  #%d %s\n", rank, color.CyanString(quoteTitle(q)))
	fmt.Fprintf(w, "    Input:          %s\n", formatAmount(q.InputAmount, in))
	fmt.Fprintf(w, "    Expected out:   %s\n", color.GreenString(formatAmount(q.ExpectedOutput, out)))
	fmt.Fprintf(w, "    Minimum out:    %s\n", formatAmount(q.MinimumOutput, out))
	fmt.Fprintf(w, "    Price impact:   %s\n", formatImpact(q.PriceImpact))
	fmt.Fprintf(w, "    DEX fee:        %.2f%%\n", q.DexFeePercent)
	if q.Standard != "" {
		fmt.Fprintf(w, "    Standard:       %s\n", q.Standard)
	}
	fees := q.FeeBreakdown
	fmt.Fprintf(w, "    Transfer fees:  %d in, %d out\n", fees.InputFeeCount, fees.OutputFeeCount)
	for _, leg := range q.Legs {
		fmt.Fprintf(w, "      - %-10s %s -> %s\n", leg.DexName, formatAmount(leg.InputAmount, in), formatAmount(leg.ExpectedOutput, out))
	}
}

func progressLine(p domain.SwapProgress) string {
	line := fmt.Sprintf("[%d/%d] %-18s %s", p.StepIndex, p.TotalSteps, p.Step, p.Message)
	if len(p.Legs) > 0 {
		legs := make([]string, len(p.Legs))
		for i, l := range p.Legs {
			legs[i] = fmt.Sprintf("%s=%s", l.DexID, l.Progress.Step)
		}
		line += " (" + strings.Join(legs, ", ") + ")"
	}
	switch {
	case p.Failed:
		return color.RedString(line)
	case p.Completed:
		return color.GreenString(line)
	default:
		return line
	}
}

func printResult(w io.Writer, r *domain.SwapResult, out *domain.TokenInfo) {
	if r.Success {
		fmt.Fprintf(w, "\n%s received %s\n", color.GreenString("✓ Swap complete:"), formatAmount(r.AmountOut, out))
	} else {
		fmt.Fprintf(w, "\n%s %s\n", color.RedString("✗ Swap failed:"), r.Error)
	}
	if r.TxID != "" {
		fmt.Fprintf(w, "  Tx:  %s\n", color.CyanString(r.TxID))
	}
	if r.PendingKey != "" {
		fmt.Fprintf(w, "  Resume with: swapctl pending resume %s\n", r.PendingKey)
	}
	for _, leg := range r.Legs {
		status := color.GreenString("ok")
		if !leg.Success {
			status = color.RedString("failed: %s", leg.Error)
		}
		fmt.Fprintf(w, "  - %-10s %s  %s\n", leg.DexName, formatAmount(leg.AmountOut, out), status)
	}
}
