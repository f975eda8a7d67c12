package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hxuan190/dex-aggregator/internal/common"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
	"github.com/hxuan190/dex-aggregator/internal/pending"
	"github.com/hxuan190/dex-aggregator/internal/tokens"
)

const DefaultSlippage = 0.01

var (
	ErrAdapterNotRegistered = errors.New("dex adapter not registered")
	ErrNoAdapters           = errors.New("no dex adapters registered")
	ErrDuplicateAdapter     = errors.New("dex adapter already registered")
	ErrCannotResume         = errors.New("dex adapter cannot resume pending transfers")
)

type QuoteParams struct {
	InputToken        string
	OutputToken       string
	Amount            *big.Int
	Slippage          float64
	PreferredStandard domain.Standard
	DexIDs            []string
}

type SwapParams struct {
	Quote *domain.SwapQuote
	// Slippage overrides the aggregator default when set.
	Slippage *float64
	// Standard overrides the quote's standard when set.
	Standard   domain.Standard
	OnProgress domain.ProgressFunc
}

type Option func(*Aggregator)

// WithPending enables ResumePending and PendingTransfers.
func WithPending(c *pending.Cache) Option {
	return func(a *Aggregator) { a.pending = c }
}

// WithConcurrency caps in-flight adapter calls per fan-out. Zero is unlimited.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.concurrency = n }
}

func WithDefaultSlippage(s float64) Option {
	return func(a *Aggregator) { a.slippage = s }
}

// Aggregator owns the adapter registry and fans quotes, pair discovery and
// swaps out to it. Adapters are consulted in registration order.
type Aggregator struct {
	tokens      dex.TokenSource
	pending     *pending.Cache
	concurrency int
	slippage    float64

	mu       sync.RWMutex
	adapters map[string]dex.Adapter
	order    []string
}

func New(tokenSource dex.TokenSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		tokens:   tokenSource,
		slippage: DefaultSlippage,
		adapters: make(map[string]dex.Adapter),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Slippage is the fraction applied to swaps that carry none.
func (a *Aggregator) Slippage() float64 {
	return a.slippage
}

func (a *Aggregator) RegisterDex(adapter dex.Adapter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := adapter.ID()
	if _, ok := a.adapters[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapter, id)
	}
	a.adapters[id] = adapter
	a.order = append(a.order, id)
	metrics.RegisteredDexes.Set(float64(len(a.adapters)))
	log.Info().Str("dex", id).Msg("[Aggregator] registered dex adapter")
	return nil
}

func (a *Aggregator) UnregisterDex(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.adapters[id]; !ok {
		return false
	}
	delete(a.adapters, id)
	a.order = slices.DeleteFunc(a.order, func(s string) bool { return s == id })
	metrics.RegisteredDexes.Set(float64(len(a.adapters)))
	return true
}

func (a *Aggregator) Dex(id string) (dex.Adapter, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	adapter, ok := a.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotRegistered, id)
	}
	return adapter, nil
}

// Dexes returns the registered adapters in registration order.
func (a *Aggregator) Dexes() []dex.Adapter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]dex.Adapter, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.adapters[id])
	}
	return out
}

func (a *Aggregator) selectDexes(ids []string) ([]dex.Adapter, error) {
	all := a.Dexes()
	if len(all) == 0 {
		return nil, ErrNoAdapters
	}
	if len(ids) == 0 {
		return all, nil
	}
	for _, id := range ids {
		if _, err := a.Dex(id); err != nil {
			return nil, err
		}
	}
	return slices.DeleteFunc(all, func(d dex.Adapter) bool { return !slices.Contains(ids, d.ID()) }), nil
}

// GetQuotes quotes every compatible adapter concurrently and ranks the
// results by expected output, best first. A failing adapter is logged and
// left out; it never fails the batch.
func (a *Aggregator) GetQuotes(ctx context.Context, p QuoteParams) ([]*domain.SwapQuote, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", dex.ErrAmountTooSmall)
	}
	candidates, err := a.selectDexes(p.DexIDs)
	if err != nil {
		return nil, err
	}
	info, err := a.tokens.GetTokenInfo(ctx, p.InputToken)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p.InputToken, err)
	}

	type job struct {
		adapter dex.Adapter
		std     domain.Standard
	}
	jobs := make([]job, 0, len(candidates))
	for _, d := range candidates {
		if !tokens.Compatible(info, d.SupportedStandards()) {
			log.Debug().Str("dex", d.ID()).Str("token", info.Symbol).Msg("[Aggregator] skipping dex without a shared standard")
			continue
		}
		std, err := tokens.ResolveStandard(info, d.SupportedStandards(), p.PreferredStandard)
		if err != nil {
			continue
		}
		jobs = append(jobs, job{adapter: d, std: std})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: no dex accepts %s", tokens.ErrIncompatibleStandard, info.Symbol)
	}

	tasks := make([]func(context.Context) (*domain.SwapQuote, error), len(jobs))
	for i, j := range jobs {
		tasks[i] = func(ctx context.Context) (*domain.SwapQuote, error) {
			start := time.Now()
			q, err := j.adapter.GetQuote(ctx, dex.QuoteRequest{
				InputToken:  p.InputToken,
				OutputToken: p.OutputToken,
				Amount:      p.Amount,
				Standard:    j.std,
				Slippage:    p.Slippage,
			})
			metrics.QuoteDuration.WithLabelValues(j.adapter.ID()).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.QuoteRequests.WithLabelValues(j.adapter.ID(), "error").Inc()
				return nil, dex.Wrap(j.adapter.ID(), "quote", err)
			}
			metrics.QuoteRequests.WithLabelValues(j.adapter.ID(), "success").Inc()
			return q, nil
		}
	}

	quotes, errs := common.Partition(common.SettleAll(ctx, a.concurrency, tasks))
	for _, err := range errs {
		log.Warn().Str("dex", dex.DexIDOf(err)).Err(err).Msg("[Aggregator] quote failed, dex excluded")
	}
	quotes = slices.DeleteFunc(quotes, func(q *domain.SwapQuote) bool { return q == nil })

	RankQuotes(quotes)
	metrics.QuotesReturned.Observe(float64(len(quotes)))
	for _, q := range quotes {
		metrics.PriceImpact.WithLabelValues(string(dex.GetPriceImpactSeverity(dex.ImpactBps(q.PriceImpact)))).Observe(q.PriceImpact)
	}
	return quotes, nil
}

// RankQuotes sorts by expected output, best first. Ties keep their order.
func RankQuotes(quotes []*domain.SwapQuote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].ExpectedOrZero().Cmp(quotes[j].ExpectedOrZero()) > 0
	})
}

// Swap executes a single-dex or split quote.
func (a *Aggregator) Swap(ctx context.Context, p SwapParams) (*domain.SwapResult, error) {
	if p.Quote == nil {
		return nil, fmt.Errorf("%w: nil quote", dex.ErrInvalidQuote)
	}
	slippage := a.slippage
	if p.Slippage != nil {
		slippage = *p.Slippage
	}
	if p.Quote.IsSplitQuote {
		return a.executeSplit(ctx, p.Quote, slippage, p.OnProgress)
	}

	adapter, err := a.Dex(p.Quote.DexID)
	if err != nil {
		return nil, err
	}
	q := p.Quote
	if p.Standard != "" && p.Standard != q.Standard {
		q = q.WithStandard(p.Standard)
	}
	return adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: slippage, OnProgress: p.OnProgress})
}

// GetAvailableDexes lists the adapters that can trade the pair.
func (a *Aggregator) GetAvailableDexes(ctx context.Context, tokenIn, tokenOut string) ([]string, error) {
	all := a.Dexes()
	tasks := make([]func(context.Context) (string, error), len(all))
	for i, d := range all {
		tasks[i] = func(ctx context.Context) (string, error) {
			ok, err := d.HasPair(ctx, tokenIn, tokenOut)
			if err != nil {
				return "", dex.Wrap(d.ID(), "hasPair", err)
			}
			if !ok {
				return "", nil
			}
			return d.ID(), nil
		}
	}
	ids, errs := common.Partition(common.SettleAll(ctx, a.concurrency, tasks))
	for _, err := range errs {
		log.Warn().Str("dex", dex.DexIDOf(err)).Err(err).Msg("[Aggregator] pair check failed")
	}
	return slices.DeleteFunc(ids, func(id string) bool { return id == "" }), nil
}

// GetAllPairsForToken merges pair discovery across every adapter.
func (a *Aggregator) GetAllPairsForToken(ctx context.Context, token string) ([]domain.Pair, error) {
	all := a.Dexes()
	tasks := make([]func(context.Context) ([]domain.Pair, error), len(all))
	for i, d := range all {
		tasks[i] = func(ctx context.Context) ([]domain.Pair, error) {
			pairs, err := d.GetPairsForToken(ctx, token)
			return pairs, dex.Wrap(d.ID(), "pairs", err)
		}
	}
	results, errs := common.Partition(common.SettleAll(ctx, a.concurrency, tasks))
	for _, err := range errs {
		log.Warn().Str("dex", dex.DexIDOf(err)).Err(err).Msg("[Aggregator] pair discovery failed")
	}
	merged := make([]domain.Pair, 0)
	for _, pairs := range results {
		merged = append(merged, pairs...)
	}
	return merged, nil
}

func (a *Aggregator) PendingTransfers() ([]*domain.PendingTransferRecord, error) {
	if a.pending == nil {
		return nil, nil
	}
	return a.pending.List()
}

// ResumePending replays the dependent swap call of a recorded transfer.
func (a *Aggregator) ResumePending(ctx context.Context, key string, onProgress domain.ProgressFunc) (*domain.SwapResult, error) {
	if a.pending == nil {
		return nil, fmt.Errorf("%w: %s", pending.ErrPendingNotFound, key)
	}
	rec, err := a.pending.Get(key)
	if err != nil {
		return nil, err
	}
	adapter, err := a.Dex(rec.DexID)
	if err != nil {
		return nil, err
	}
	resumer, ok := adapter.(dex.Resumer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCannotResume, rec.DexID)
	}
	log.Info().Str("key", key).Str("dex", rec.DexID).Msg("[Aggregator] resuming pending transfer")
	return resumer.ResumePending(ctx, rec, onProgress)
}

func (a *Aggregator) OutstandingClaims() ([]domain.OutstandingClaim, error) {
	var out []domain.OutstandingClaim
	for _, d := range a.Dexes() {
		c, ok := d.(dex.Claimer)
		if !ok {
			continue
		}
		claims, err := c.OutstandingClaims()
		if err != nil {
			return nil, dex.Wrap(d.ID(), "claims", err)
		}
		out = append(out, claims...)
	}
	return out, nil
}

// RetryClaims retries outstanding claims on every adapter that keeps them
// and reports how many were settled per dex.
func (a *Aggregator) RetryClaims(ctx context.Context) (map[string]int, error) {
	settled := make(map[string]int)
	var errs []error
	for _, d := range a.Dexes() {
		c, ok := d.(dex.Claimer)
		if !ok {
			continue
		}
		n, err := c.RetryClaims(ctx)
		settled[d.ID()] = n
		if err != nil {
			errs = append(errs, dex.Wrap(d.ID(), "retryClaims", err))
		}
	}
	return settled, errors.Join(errs...)
}
