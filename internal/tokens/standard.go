package tokens

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hxuan190/dex-aggregator/internal/domain"
)

var ErrIncompatibleStandard = errors.New("token and dex share no transfer standard")

// CanonicalStandard collapses ledger-declared names such as "ICRC-1", "icrc1"
// or "ICRC_2" into a canonical tag. Unknown names report false.
func CanonicalStandard(name string) (domain.Standard, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "", "_", "", " ", "").Replace(n)
	switch n {
	case "ICRC1":
		return domain.StandardICRC1, true
	case "ICRC2":
		return domain.StandardICRC2, true
	default:
		return "", false
	}
}

// CanonicalStandards maps and de-duplicates names, falling back to ICRC1 when
// nothing recognizable was declared.
func CanonicalStandards(names []string) []domain.Standard {
	out := make([]domain.Standard, 0, len(names))
	for _, name := range names {
		std, ok := CanonicalStandard(name)
		if !ok || slices.Contains(out, std) {
			continue
		}
		out = append(out, std)
	}
	if len(out) == 0 {
		out = append(out, domain.StandardICRC1)
	}
	sortStandards(out)
	return out
}

// Intersection returns the standards both sides support, richest first.
func Intersection(token, dex []domain.Standard) []domain.Standard {
	var out []domain.Standard
	for _, std := range token {
		if slices.Contains(dex, std) && !slices.Contains(out, std) {
			out = append(out, std)
		}
	}
	sortStandards(out)
	return out
}

// Compatible reports whether a dex can move the token at all.
func Compatible(info *domain.TokenInfo, dexStandards []domain.Standard) bool {
	return info != nil && len(Intersection(info.Standards, dexStandards)) > 0
}

// ResolveStandard picks the transfer standard a dex should use for a token.
// An explicit preference wins when both sides support it; otherwise the
// approve-style standard is preferred, then whatever remains. The result only
// depends on the arguments.
func ResolveStandard(info *domain.TokenInfo, dexStandards []domain.Standard, preference domain.Standard) (domain.Standard, error) {
	if info == nil {
		return "", fmt.Errorf("%w: unknown token", ErrIncompatibleStandard)
	}
	common := Intersection(info.Standards, dexStandards)
	if len(common) == 0 {
		return "", fmt.Errorf("%w: token %s supports %v, dex supports %v",
			ErrIncompatibleStandard, info.LedgerID, info.Standards, dexStandards)
	}
	if preference != "" && slices.Contains(common, preference) {
		return preference, nil
	}
	if slices.Contains(common, domain.StandardICRC2) {
		return domain.StandardICRC2, nil
	}
	return common[0], nil
}

func sortStandards(stds []domain.Standard) {
	slices.SortStableFunc(stds, func(a, b domain.Standard) int {
		return b.Rank() - a.Rank()
	})
}
