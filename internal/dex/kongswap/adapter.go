// Package kongswap adapts the KongSwap routed backend to the dex.Adapter
// contract. One backend canister quotes and executes multi-hop routes.
package kongswap

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/pending"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
	"github.com/hxuan190/dex-aggregator/internal/services"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

const (
	DexID   = "kongswap"
	DexName = "KongSwap"

	// defaultLpFee is the pool fee assumed when a hop does not report one.
	defaultLpFee = 0.003
)

type Deps struct {
	Backend rpc.RoutedBackend
	Ledgers rpc.LedgerProvider
	Tokens  dex.TokenSource
	Pending *pending.Cache
	// Cache holds the pools-by-token index and outstanding claims.
	Cache store.Store
	Owner string
}

type Adapter struct {
	backend rpc.RoutedBackend
	ledgers rpc.LedgerProvider
	tokens  dex.TokenSource
	pending *pending.Cache
	cache   store.Store
	claims  store.Store
	owner   string
	logger  *services.ServiceLogger

	mu          sync.Mutex
	indexLoaded bool
}

var (
	_ dex.Adapter = (*Adapter)(nil)
	_ dex.Resumer = (*Adapter)(nil)
	_ dex.Claimer = (*Adapter)(nil)
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
	ns := store.Prefixed(cache, DexID)
	a := &Adapter{
		backend: d.Backend,
		ledgers: d.Ledgers,
		tokens:  d.Tokens,
		pending: pend,
		cache:   ns,
		claims:  store.Prefixed(ns, "claim"),
		owner:   d.Owner,
		logger:  services.NewDexLogger(DexID),
	}
	a.refreshClaimGauge()
	return a
}

// tokenRef is the backend's chain-qualified token identifier.
func tokenRef(ledgerID string) string {
	return "IC." + ledgerID
}

func tokenPoolsKey(token string) string {
	return "tokenpools:" + token
}

func (a *Adapter) ID() string   { return DexID }
func (a *Adapter) Name() string { return DexName }

func (a *Adapter) SupportedStandards() []domain.Standard {
	return []domain.Standard{domain.StandardICRC2, domain.StandardICRC1}
}

// InputFeeCount: a single transfer, or approve plus transfer_from.
func (a *Adapter) InputFeeCount(std domain.Standard) int {
	if std == domain.StandardICRC2 {
		return 2
	}
	return 1
}

// OutputFeeCount is zero: the backend's receive amount is already net of
// its outbound transfer fee.
func (a *Adapter) OutputFeeCount(std domain.Standard) int {
	return 0
}

func (a *Adapter) loadPools(ctx context.Context) (map[string][]domain.Pair, error) {
	pools, err := a.backend.Pools(ctx, "")
	if err != nil {
		return nil, dex.Wrap(DexID, "pools", err)
	}

	byToken := make(map[string][]domain.Pair)
	for _, p := range pools {
		if p.IsRemoved || p.Address0 == "" || p.Address1 == "" {
			continue
		}
		id := p.Symbol
		if id == "" {
			id = p.PoolID
		}
		byToken[p.Address0] = append(byToken[p.Address0], domain.Pair{DexID: DexID, InputToken: p.Address0, OutputToken: p.Address1, PoolID: id})
		byToken[p.Address1] = append(byToken[p.Address1], domain.Pair{DexID: DexID, InputToken: p.Address1, OutputToken: p.Address0, PoolID: id})
	}

	entries := make(map[string][]byte, len(byToken))
	for token, pairs := range byToken {
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].OutputToken < pairs[j].OutputToken })
		if data, err := sonic.Marshal(pairs); err == nil {
			entries[tokenPoolsKey(token)] = data
		}
	}
	if err := store.SetMany(a.cache, entries); err != nil {
		a.logger.Warn().Err(err).Msg("[KongSwap] failed to persist pool index")
	}

	a.mu.Lock()
	a.indexLoaded = true
	a.mu.Unlock()
	a.logger.Info().Int("pools", len(pools)).Int("tokens", len(byToken)).Msg("[KongSwap] pool index loaded")
	return byToken, nil
}

func (a *Adapter) GetPairsForToken(ctx context.Context, token string) ([]domain.Pair, error) {
	var pairs []domain.Pair
	if data, ok, err := a.cache.Get(tokenPoolsKey(token)); err == nil && ok {
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

// HasPair looks for a direct pool first and otherwise asks the backend to
// route one token unit.
func (a *Adapter) HasPair(ctx context.Context, tokenA, tokenB string) (bool, error) {
	pairs, err := a.GetPairsForToken(ctx, tokenA)
	if err == nil {
		for _, p := range pairs {
			if p.OutputToken == tokenB {
				return true, nil
			}
		}
	} else {
		a.logger.Debug().Err(err).Msg("[KongSwap] pool listing failed, probing route")
	}

	info, err := a.tokens.GetTokenInfo(ctx, tokenA)
	if err != nil {
		return false, err
	}
	reply, err := a.backend.SwapAmounts(ctx, tokenRef(tokenA), dex.OneUnit(info.Decimals), tokenRef(tokenB))
	if err != nil {
		a.logger.Debug().Err(err).Str("in", tokenA).Str("out", tokenB).Msg("[KongSwap] no route")
		return false, nil
	}
	return reply.ReceiveAmount != nil && reply.ReceiveAmount.Sign() > 0, nil
}

func (a *Adapter) GetSpotPrice(ctx context.Context, tokenIn, tokenOut string) (float64, error) {
	info, err := a.tokens.GetTokenInfo(ctx, tokenIn)
	if err != nil {
		return 0, err
	}
	reply, err := a.backend.SwapAmounts(ctx, tokenRef(tokenIn), dex.OneUnit(info.Decimals), tokenRef(tokenOut))
	if err == nil {
		if reply.MidPrice != nil && *reply.MidPrice > 0 {
			return *reply.MidPrice, nil
		}
		if reply.Price > 0 {
			return reply.Price, nil
		}
	}

	pools, perr := a.backend.Pools(ctx, "")
	if perr != nil {
		if err != nil {
			return 0, dex.Wrap(DexID, "spotPrice", err)
		}
		return 0, dex.Wrap(DexID, "spotPrice", perr)
	}
	for _, p := range pools {
		if p.IsRemoved || p.Price <= 0 {
			continue
		}
		switch {
		case p.Address0 == tokenIn && p.Address1 == tokenOut:
			return p.Price, nil
		case p.Address1 == tokenIn && p.Address0 == tokenOut:
			return 1 / p.Price, nil
		}
	}
	return 0, dex.Wrap(DexID, "spotPrice", fmt.Errorf("%w: %s/%s", dex.ErrNoPoolForPair, tokenIn, tokenOut))
}

// routeFees folds per-hop LP fees into one fraction of the traded amount.
func routeFees(txs []rpc.SwapAmountsTx) (fraction float64, lpFee *big.Int) {
	keep := 1.0
	for _, tx := range txs {
		f := defaultLpFee
		if tx.LpFee != nil && tx.ReceiveAmount != nil {
			gross := new(big.Int).Add(tx.ReceiveAmount, tx.LpFee)
			if gross.Sign() > 0 {
				f, _ = decimal.NewFromBigInt(tx.LpFee, 0).Div(decimal.NewFromBigInt(gross, 0)).Float64()
			}
		}
		keep *= 1 - f
	}
	if len(txs) == 0 {
		keep = 1 - defaultLpFee
	}
	if len(txs) == 1 && txs[0].LpFee != nil {
		lpFee = new(big.Int).Set(txs[0].LpFee)
	}
	return 1 - keep, lpFee
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

	reply, err := a.backend.SwapAmounts(ctx, tokenRef(req.InputToken), effective, tokenRef(req.OutputToken))
	if err != nil {
		return nil, dex.QuoteError(DexID, err)
	}
	if reply.ReceiveAmount == nil || reply.ReceiveAmount.Sign() <= 0 {
		return nil, dex.Wrap(DexID, "swap_amounts", fmt.Errorf("%w: %s/%s", dex.ErrNoPoolForPair, req.InputToken, req.OutputToken))
	}
	raw := reply.ReceiveAmount
	expected, outFees := dex.OutputAfterFees(raw, out.Fee, outCount)

	feeFraction, lpFee := routeFees(reply.Txs)
	if lpFee == nil {
		// gross output before fees, minus what was received
		gross := decimal.NewFromBigInt(raw, 0).Div(decimal.NewFromFloat(1 - feeFraction))
		lpFee = gross.Sub(decimal.NewFromBigInt(raw, 0)).Truncate(0).BigInt()
	}

	var spot, impact float64
	if reply.MidPrice != nil {
		spot = *reply.MidPrice
	} else {
		spot = reply.Price
	}
	if reply.Slippage != nil {
		impact = max(*reply.Slippage/100, 0)
	} else {
		impact = dex.PriceImpact(spot, effective, raw, in.Decimals, out.Decimals, feeFraction)
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
		PriceImpact:          impact,
		DexFeePercent:        feeFraction * 100,
		FeeBreakdown: domain.FeeBreakdown{
			InputTransferFees:    inFees,
			OutputWithdrawalFees: outFees,
			DexTradingFee:        lpFee,
			InputFeeCount:        inCount,
			OutputFeeCount:       outCount,
		},
		Standard:  req.Standard,
		Route:     routeSteps(reply, req.InputToken, req.OutputToken, effective),
		Timestamp: time.Now(),
	}, nil
}

func routeSteps(reply *rpc.SwapAmountsReply, in, out string, effective *big.Int) []domain.RouteStep {
	if len(reply.Txs) == 0 {
		return []domain.RouteStep{{
			DexID:       DexID,
			InputToken:  in,
			OutputToken: out,
			AmountIn:    effective,
			AmountOut:   reply.ReceiveAmount,
		}}
	}
	steps := make([]domain.RouteStep, 0, len(reply.Txs))
	for _, tx := range reply.Txs {
		steps = append(steps, domain.RouteStep{
			DexID:       DexID,
			PoolID:      tx.PoolSymbol,
			InputToken:  tx.PayAddress,
			OutputToken: tx.ReceiveAddress,
			AmountIn:    tx.PayAmount,
			AmountOut:   tx.ReceiveAmount,
		})
	}
	return steps
}
