package dex

import (
	"context"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

// TokenSource is satisfied by tokens.Resolver.
type TokenSource interface {
	GetTokenInfo(ctx context.Context, ledgerID string) (*domain.TokenInfo, error)
}

// TokenPair resolves both sides of a swap concurrently.
func TokenPair(ctx context.Context, src TokenSource, in, out string) (*domain.TokenInfo, *domain.TokenInfo, error) {
	var inInfo, outInfo *domain.TokenInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		inInfo, err = src.GetTokenInfo(gctx, in)
		return err
	})
	g.Go(func() (err error) {
		outInfo, err = src.GetTokenInfo(gctx, out)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return inInfo, outInfo, nil
}

// EnsureAllowance runs the CHECKING_ALLOWANCE and optional APPROVING steps of
// an approve-and-pull swap. need is what the spender will pull, including
// the transfer_from fee.
func EnsureAllowance(ctx context.Context, tr *Tracker, ledger rpc.Ledger, owner, spender rpc.Account, need, fee *big.Int) error {
	tr.Step(domain.StepCheckingAllowance, "Checking allowance")
	current, err := ledger.Allowance(ctx, owner, spender)
	if err != nil {
		return fmt.Errorf("allowance: %w", err)
	}
	if current != nil && current.Allowance != nil && current.Allowance.Cmp(need) >= 0 {
		tr.Skip()
		return nil
	}

	tr.Step(domain.StepApproving, fmt.Sprintf("Approving %s for %s", need, spender.Owner))
	if _, err := ledger.Approve(ctx, rpc.ApproveArgs{
		Spender: spender,
		Amount:  need,
		Fee:     fee,
	}); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

// CheckStandard rejects a standard the adapter does not support.
func CheckStandard(a Adapter, std domain.Standard) error {
	for _, s := range a.SupportedStandards() {
		if s == std {
			return nil
		}
	}
	return fmt.Errorf("%w: %s does not support %s", ErrIncompatibleStandard, a.ID(), std)
}

// ValidateQuote checks that a quote can be executed by a.
func ValidateQuote(a Adapter, q *domain.SwapQuote) error {
	if q == nil {
		return fmt.Errorf("%w: nil quote", ErrInvalidQuote)
	}
	if q.DexID != a.ID() {
		return fmt.Errorf("%w: quote for %s sent to %s", ErrInvalidQuote, q.DexID, a.ID())
	}
	if q.InputAmount == nil || q.InputAmount.Sign() <= 0 {
		return fmt.Errorf("%w: empty input amount", ErrInvalidQuote)
	}
	return CheckStandard(a, q.Standard)
}
