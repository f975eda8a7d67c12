// Package dex defines the capability set every exchange adapter implements and
// the quote arithmetic the adapters share.
package dex

import (
	"context"
	"math/big"

	"github.com/hxuan190/dex-aggregator/internal/domain"
)

type QuoteRequest struct {
	InputToken  string
	OutputToken string
	Amount      *big.Int
	Standard    domain.Standard
	Slippage    float64
}

type SwapRequest struct {
	Quote      *domain.SwapQuote
	Slippage   float64
	OnProgress domain.ProgressFunc
}

// Adapter is one exchange backend. Implementations own their pool discovery
// and caches and are held by the aggregator keyed by ID.
type Adapter interface {
	ID() string
	Name() string
	SupportedStandards() []domain.Standard

	HasPair(ctx context.Context, tokenA, tokenB string) (bool, error)
	GetPairsForToken(ctx context.Context, token string) ([]domain.Pair, error)
	GetSpotPrice(ctx context.Context, tokenIn, tokenOut string) (float64, error)
	GetQuote(ctx context.Context, req QuoteRequest) (*domain.SwapQuote, error)

	// InputFeeCount and OutputFeeCount are the number of ledger transfer fees
	// the standard costs on each side of the swap.
	InputFeeCount(std domain.Standard) int
	OutputFeeCount(std domain.Standard) int

	// ExecuteSwap reports remote swap rejections through a failed result and
	// a FAILED progress event rather than an error. Errors are reserved for
	// pre-flight failures that happen before any funds move.
	ExecuteSwap(ctx context.Context, req SwapRequest) (*domain.SwapResult, error)
}

// Resumer is implemented by adapters with a transfer-then-swap path.
type Resumer interface {
	ResumePending(ctx context.Context, rec *domain.PendingTransferRecord, onProgress domain.ProgressFunc) (*domain.SwapResult, error)
}

// Claimer is implemented by adapters whose swaps may leave proceeds to claim.
type Claimer interface {
	OutstandingClaims() ([]domain.OutstandingClaim, error)
	RetryClaims(ctx context.Context) (claimed int, err error)
}
