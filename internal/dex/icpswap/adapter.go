// Package icpswap adapts pool-style ICPSwap canisters to the dex.Adapter
// contract. Each pair lives in its own pool canister found through the
// factory at a fixed fee tier.
package icpswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/pending"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
	"github.com/hxuan190/dex-aggregator/internal/services"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

const (
	DexID   = "icpswap"
	DexName = "ICPSwap"

	// DefaultFeeTier is the 0.3% pool tier, in millionths.
	DefaultFeeTier uint32 = 3000
)

type Deps struct {
	Factory rpc.PoolFactory
	Pools   rpc.PoolProvider
	Ledgers rpc.LedgerProvider
	Tokens  dex.TokenSource
	Pending *pending.Cache
	// Cache holds pool ids and the pools-by-token index. Nil means memory only.
	Cache store.Store
	// Owner is the caller principal whose funds are swapped.
	Owner   string
	FeeTier uint32
}

type Adapter struct {
	factory rpc.PoolFactory
	pools   rpc.PoolProvider
	ledgers rpc.LedgerProvider
	tokens  dex.TokenSource
	pending *pending.Cache
	cache   store.Store
	owner   string
	feeTier uint32
	logger  *services.ServiceLogger

	mu          sync.Mutex
	indexLoaded bool
}

var (
	_ dex.Adapter = (*Adapter)(nil)
	_ dex.Resumer = (*Adapter)(nil)
)

func New(d Deps) *Adapter {
	cache := d.Cache
	if cache == nil {
		cache = store.NewMemory()
	}
	pend := d.Pending
	if pend == nil {
		pend = pending.New(store.NewMemory())
	}
	feeTier := d.FeeTier
	if feeTier == 0 {
		feeTier = DefaultFeeTier
	}
	return &Adapter{
		factory: d.Factory,
		pools:   d.Pools,
		ledgers: d.Ledgers,
		tokens:  d.Tokens,
		pending: pend,
		cache:   store.Prefixed(cache, DexID),
		owner:   d.Owner,
		feeTier: feeTier,
		logger:  services.NewDexLogger(DexID),
	}
}

func (a *Adapter) ID() string   { return DexID }
func (a *Adapter) Name() string { return DexName }

func (a *Adapter) SupportedStandards() []domain.Standard {
	return []domain.Standard{domain.StandardICRC2, domain.StandardICRC1}
}

// InputFeeCount is 2 for both standards: transfer plus deposit, or approve
// plus transfer_from.
func (a *Adapter) InputFeeCount(std domain.Standard) int {
	return 2
}

// OutputFeeCount covers the withdrawal out of the pool.
func (a *Adapter) OutputFeeCount(std domain.Standard) int {
	return 1
}

func (a *Adapter) HasPair(ctx context.Context, tokenA, tokenB string) (bool, error) {
	_, err := a.pool(ctx, tokenA, tokenB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, dex.ErrNoPoolForPair) {
		return false, nil
	}

	// getPool itself failed. The factory's pool listing is a separate call
	// and seeds the pool-id cache, so a pair found there can be confirmed
	// with a quote against its pool.
	a.logger.Debug().Err(err).Msg("[ICPSwap] pool lookup failed, checking the pool index")
	pairs, listErr := a.GetPairsForToken(ctx, tokenA)
	if listErr != nil {
		return false, err
	}
	if !slices.ContainsFunc(pairs, func(p domain.Pair) bool { return p.OutputToken == tokenB }) {
		return false, nil
	}
	info, infoErr := a.tokens.GetTokenInfo(ctx, tokenA)
	if infoErr != nil {
		return false, err
	}
	std := domain.StandardICRC1
	if info.Supports(domain.StandardICRC2) {
		std = domain.StandardICRC2
	}
	probe := new(big.Int).Add(dex.OneUnit(info.Decimals), dex.TransferFees(a.InputFeeCount(std), info.Fee))
	if _, qerr := a.GetQuote(ctx, dex.QuoteRequest{
		InputToken:  tokenA,
		OutputToken: tokenB,
		Amount:      probe,
		Standard:    std,
	}); qerr != nil {
		return false, qerr
	}
	return true, nil
}

func (a *Adapter) GetPairsForToken(ctx context.Context, token string) ([]domain.Pair, error) {
	var pairs []domain.Pair
	data, ok, err := a.cache.Get(tokenPoolsKey(token))
	if err == nil && ok {
		if err := sonic.Unmarshal(data, &pairs); err == nil {
			return pairs, nil
		}
	}

	a.mu.Lock()
	loaded := a.indexLoaded
	a.mu.Unlock()
	if loaded {
		return []domain.Pair{}, nil
	}

	byToken, err := a.loadPools(ctx)
	if err != nil {
		return nil, err
	}
	if pairs = byToken[token]; pairs == nil {
		pairs = []domain.Pair{}
	}
	return pairs, nil
}

func (a *Adapter) GetSpotPrice(ctx context.Context, tokenIn, tokenOut string) (float64, error) {
	ref, err := a.pool(ctx, tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	in, out, err := dex.TokenPair(ctx, a.tokens, tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	return a.spotFromPool(ctx, a.pools.Pool(ref.CanisterID), ref, in, out)
}

func (a *Adapter) GetQuote(ctx context.Context, req dex.QuoteRequest) (*domain.SwapQuote, error) {
	if err := dex.CheckStandard(a, req.Standard); err != nil {
		return nil, err
	}
	in, out, err := dex.TokenPair(ctx, a.tokens, req.InputToken, req.OutputToken)
	if err != nil {
		return nil, err
	}
	if !in.Supports(req.Standard) {
		return nil, fmt.Errorf("%w: %s does not support %s", dex.ErrIncompatibleStandard, in.Symbol, req.Standard)
	}

	inCount, outCount := a.InputFeeCount(req.Standard), a.OutputFeeCount(req.Standard)
	effective, inFees, err := dex.EffectiveInput(req.Amount, in.Fee, inCount)
	if err != nil {
		return nil, err
	}

	ref, err := a.pool(ctx, req.InputToken, req.OutputToken)
	if err != nil {
		return nil, err
	}
	pool := a.pools.Pool(ref.CanisterID)
	zeroForOne := ref.Token0.Address == req.InputToken

	raw, err := pool.Quote(ctx, rpc.PoolQuoteArgs{
		AmountIn:         effective,
		ZeroForOne:       zeroForOne,
		AmountOutMinimum: new(big.Int),
	})
	if err != nil {
		return nil, dex.QuoteError(DexID, err)
	}
	expected, outFees := dex.OutputAfterFees(raw, out.Fee, outCount)

	feeFraction := float64(ref.Fee) / 1e6
	tradingFee := new(big.Int).Mul(effective, big.NewInt(int64(ref.Fee)))
	tradingFee.Quo(tradingFee, big.NewInt(1_000_000))

	spot, err := a.spotFromPool(ctx, pool, ref, in, out)
	if err != nil {
		a.logger.Debug().Err(err).Str("pool", ref.CanisterID).Msg("[ICPSwap] spot price unavailable, price impact not computed")
	}

	return &domain.SwapQuote{
		DexID:                DexID,
		DexName:              DexName,
		InputToken:           req.InputToken,
		OutputToken:          req.OutputToken,
		InputAmount:          new(big.Int).Set(req.Amount),
		EffectiveInputAmount: effective,
		ExpectedOutput:       expected,
		MinimumOutput:        dex.MinimumOutput(expected, req.Slippage),
		SpotPrice:            spot,
		PriceImpact:          dex.PriceImpact(spot, effective, raw, in.Decimals, out.Decimals, feeFraction),
		DexFeePercent:        feeFraction * 100,
		FeeBreakdown: domain.FeeBreakdown{
			InputTransferFees:    inFees,
			OutputWithdrawalFees: outFees,
			DexTradingFee:        tradingFee,
			InputFeeCount:        inCount,
			OutputFeeCount:       outCount,
		},
		Standard: req.Standard,
		Route: []domain.RouteStep{{
			DexID:       DexID,
			PoolID:      ref.CanisterID,
			InputToken:  req.InputToken,
			OutputToken: req.OutputToken,
			AmountIn:    effective,
			AmountOut:   raw,
		}},
		Timestamp: time.Now(),
	}, nil
}
