package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/pending"
)

const (
	tokenIn  = "ledger-in"
	tokenOut = "ledger-out"
)

type fakeTokens map[string]*domain.TokenInfo

func (f fakeTokens) GetTokenInfo(ctx context.Context, id string) (*domain.TokenInfo, error) {
	info, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("unknown ledger %s", id)
	}
	return info, nil
}

func defaultTokens() fakeTokens {
	return fakeTokens{
		tokenIn:  {LedgerID: tokenIn, Symbol: "IN", Decimals: 8, Fee: big.NewInt(0), Standards: []domain.Standard{domain.StandardICRC2, domain.StandardICRC1}},
		tokenOut: {LedgerID: tokenOut, Symbol: "OUT", Decimals: 8, Fee: big.NewInt(0), Standards: []domain.Standard{domain.StandardICRC2, domain.StandardICRC1}},
	}
}

// fakeAdapter quotes with quoteFn and executes at the quoted amount.
type fakeAdapter struct {
	id        string
	standards []domain.Standard
	quoteFn   func(amount *big.Int) (*big.Int, error)
	swapErr   string
	swapDelay time.Duration
	pairs     []domain.Pair
	pairErr   error

	mu       sync.Mutex
	quoted   []domain.Standard
	executed []*domain.SwapQuote
	resumed  []*domain.PendingTransferRecord
	pend     *pending.Cache
}

func newFake(id string, quoteFn func(*big.Int) (*big.Int, error)) *fakeAdapter {
	return &fakeAdapter{
		id:        id,
		standards: []domain.Standard{domain.StandardICRC2, domain.StandardICRC1},
		quoteFn:   quoteFn,
	}
}

func fixed(out int64) func(*big.Int) (*big.Int, error) {
	return func(*big.Int) (*big.Int, error) { return big.NewInt(out), nil }
}

func failing(*big.Int) (*big.Int, error) {
	return nil, errors.New("pool offline")
}

func (f *fakeAdapter) ID() string                            { return f.id }
func (f *fakeAdapter) Name() string                          { return "Fake " + f.id }
func (f *fakeAdapter) SupportedStandards() []domain.Standard { return f.standards }
func (f *fakeAdapter) InputFeeCount(domain.Standard) int     { return 0 }
func (f *fakeAdapter) OutputFeeCount(domain.Standard) int    { return 0 }

func (f *fakeAdapter) HasPair(ctx context.Context, a, b string) (bool, error) {
	if f.pairErr != nil {
		return false, f.pairErr
	}
	for _, p := range f.pairs {
		if p.InputToken == a && p.OutputToken == b {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAdapter) GetPairsForToken(ctx context.Context, token string) ([]domain.Pair, error) {
	if f.pairErr != nil {
		return nil, f.pairErr
	}
	var out []domain.Pair
	for _, p := range f.pairs {
		if p.InputToken == token {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAdapter) GetSpotPrice(ctx context.Context, in, out string) (float64, error) {
	return 1, nil
}

func (f *fakeAdapter) GetQuote(ctx context.Context, req dex.QuoteRequest) (*domain.SwapQuote, error) {
	f.mu.Lock()
	f.quoted = append(f.quoted, req.Standard)
	f.mu.Unlock()
	out, err := f.quoteFn(req.Amount)
	if err != nil {
		return nil, dex.QuoteError(f.id, err)
	}
	return &domain.SwapQuote{
		DexID:                f.id,
		DexName:              f.Name(),
		InputToken:           req.InputToken,
		OutputToken:          req.OutputToken,
		InputAmount:          new(big.Int).Set(req.Amount),
		EffectiveInputAmount: new(big.Int).Set(req.Amount),
		ExpectedOutput:       out,
		MinimumOutput:        dex.MinimumOutput(out, req.Slippage),
		DexFeePercent:        0.3,
		PriceImpact:          0.01,
		FeeBreakdown: domain.FeeBreakdown{
			InputTransferFees:    new(big.Int),
			OutputWithdrawalFees: new(big.Int),
			DexTradingFee:        new(big.Int),
		},
		Standard:  req.Standard,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeAdapter) ExecuteSwap(ctx context.Context, req dex.SwapRequest) (*domain.SwapResult, error) {
	f.mu.Lock()
	f.executed = append(f.executed, req.Quote)
	f.mu.Unlock()

	tr := dex.NewTracker(req.OnProgress, 1)
	tr.Step(domain.StepSwapping, "swapping")
	if f.swapDelay > 0 {
		time.Sleep(f.swapDelay)
	}
	if f.swapErr != "" {
		err := fmt.Errorf("%w: %s", dex.ErrSwapFailed, f.swapErr)
		tr.Fail(err)
		return domain.FailedResult(err), nil
	}
	tr.Complete("done", f.id+"-tx")
	return &domain.SwapResult{Success: true, AmountOut: req.Quote.ExpectedOrZero(), TxID: f.id + "-tx"}, nil
}

func (f *fakeAdapter) ResumePending(ctx context.Context, rec *domain.PendingTransferRecord, onProgress domain.ProgressFunc) (*domain.SwapResult, error) {
	f.mu.Lock()
	f.resumed = append(f.resumed, rec)
	f.mu.Unlock()
	if f.pend != nil {
		if err := f.pend.Remove(rec.Key); err != nil {
			return nil, err
		}
	}
	return &domain.SwapResult{Success: true, AmountOut: big.NewInt(1)}, nil
}

// unresumable hides ResumePending.
type unresumable struct {
	dex.Adapter
}
