package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hxuan190/dex-aggregator/internal/common"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
)

const (
	SplitMaxIterations = 10
	SplitDexID         = "split"
)

// SplitParams describes an order divided between two adapters. Distribution
// is the percentage routed to DexB; DexA takes the remainder.
type SplitParams struct {
	InputToken  string
	OutputToken string
	TotalAmount *big.Int
	Slippage    float64
	DexA        string
	DexB        string
	StandardA   domain.Standard
	StandardB   domain.Standard

	// OnProgress is called whenever a new best interior distribution is found.
	OnProgress func(best *Distribution)
}

// Distribution is the outcome of quoting one split. Missing legs contribute
// zero to TotalOut.
type Distribution struct {
	Distribution int
	TotalOut     *big.Int
	QuoteA       *domain.SwapQuote
	QuoteB       *domain.SwapQuote
}

type SplitResult struct {
	BestDistribution int
	BestAmount       *big.Int
	Best             *Distribution
	Iterations       int
	// Tested maps every probed distribution to its total output.
	Tested map[int]*big.Int
}

// SplitAmounts divides total so that B gets ⌊total × distribution / 100⌋
// and A gets the rest.
func SplitAmounts(total *big.Int, distribution int) (amountA, amountB *big.Int) {
	amountB = new(big.Int).Mul(total, big.NewInt(int64(distribution)))
	amountB.Quo(amountB, big.NewInt(100))
	amountA = new(big.Int).Sub(total, amountB)
	return amountA, amountB
}

func (a *Aggregator) legQuote(ctx context.Context, adapter dex.Adapter, p SplitParams, std domain.Standard, amount *big.Int) (*domain.SwapQuote, error) {
	if amount.Sign() <= 0 {
		return nil, nil
	}
	return adapter.GetQuote(ctx, dex.QuoteRequest{
		InputToken:  p.InputToken,
		OutputToken: p.OutputToken,
		Amount:      amount,
		Standard:    std,
		Slippage:    p.Slippage,
	})
}

// GetQuoteForDistribution quotes both legs of one split concurrently. A leg
// with a zero amount or a failed quote is nil.
func (a *Aggregator) GetQuoteForDistribution(ctx context.Context, p SplitParams, distribution int) (*Distribution, error) {
	if distribution < 0 || distribution > 100 {
		return nil, fmt.Errorf("%w: distribution %d outside [0,100]", dex.ErrInvalidQuote, distribution)
	}
	adapterA, err := a.Dex(p.DexA)
	if err != nil {
		return nil, err
	}
	adapterB, err := a.Dex(p.DexB)
	if err != nil {
		return nil, err
	}
	amountA, amountB := SplitAmounts(p.TotalAmount, distribution)

	results := common.SettleAll(ctx, 0, []func(context.Context) (*domain.SwapQuote, error){
		func(ctx context.Context) (*domain.SwapQuote, error) {
			return a.legQuote(ctx, adapterA, p, p.StandardA, amountA)
		},
		func(ctx context.Context) (*domain.SwapQuote, error) {
			return a.legQuote(ctx, adapterB, p, p.StandardB, amountB)
		},
	})

	d := &Distribution{Distribution: distribution, TotalOut: new(big.Int)}
	for i, r := range results {
		if !r.OK() {
			log.Debug().Int("distribution", distribution).Int("leg", i).Err(r.Err).Msg("[Aggregator] split leg quote failed")
			continue
		}
		if r.Value == nil {
			continue
		}
		if i == 0 {
			d.QuoteA = r.Value
		} else {
			d.QuoteB = r.Value
		}
		d.TotalOut.Add(d.TotalOut, r.Value.ExpectedOrZero())
	}
	return d, nil
}

// splitSearch memoizes probed distributions for one search.
type splitSearch struct {
	agg    *Aggregator
	params SplitParams

	mu     sync.Mutex
	tested map[int]*Distribution
	best   *Distribution
}

// record stores d and reports a new interior best to OnProgress after the
// lock is released.
func (s *splitSearch) record(d *Distribution) {
	s.mu.Lock()
	s.tested[d.Distribution] = d
	improved := s.best == nil || d.TotalOut.Cmp(s.best.TotalOut) > 0
	if improved {
		s.best = d
	}
	s.mu.Unlock()

	if improved && d.Distribution > 0 && d.Distribution < 100 && s.params.OnProgress != nil {
		s.params.OnProgress(d)
	}
}

// probe fetches the untested distributions among points in parallel.
func (s *splitSearch) probe(ctx context.Context, points ...int) {
	s.mu.Lock()
	var missing []int
	for _, p := range points {
		if _, ok := s.tested[p]; !ok && !containsInt(missing, p) {
			missing = append(missing, p)
		}
	}
	s.mu.Unlock()
	if len(missing) == 0 {
		return
	}

	tasks := make([]func(context.Context) (*Distribution, error), len(missing))
	for i, p := range missing {
		tasks[i] = func(ctx context.Context) (*Distribution, error) {
			return s.agg.GetQuoteForDistribution(ctx, s.params, p)
		}
	}
	for i, r := range common.SettleAll(ctx, 0, tasks) {
		d := r.Value
		if !r.OK() || d == nil {
			d = &Distribution{Distribution: missing[i], TotalOut: new(big.Int)}
		}
		s.record(d)
	}
}

func (s *splitSearch) out(p int) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.tested[p]; ok {
		return d.TotalOut
	}
	return new(big.Int)
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// FindBestSplit runs a ternary search over the distribution in [0,100],
// treating total output as unimodal. Fee effects can make an endpoint
// dominate; the endpoint guards keep the bracket from walking away from it.
// The answer is the best distribution ever tested, not the final bracket.
func (a *Aggregator) FindBestSplit(ctx context.Context, p SplitParams) (*SplitResult, error) {
	return a.findBestSplit(ctx, p, nil)
}

func (a *Aggregator) findBestSplit(ctx context.Context, p SplitParams, seed []*Distribution) (*SplitResult, error) {
	if p.TotalAmount == nil || p.TotalAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", dex.ErrAmountTooSmall)
	}
	if _, err := a.Dex(p.DexA); err != nil {
		return nil, err
	}
	if _, err := a.Dex(p.DexB); err != nil {
		return nil, err
	}

	start := time.Now()
	s := &splitSearch{agg: a, params: p, tested: make(map[int]*Distribution)}
	for _, d := range seed {
		s.record(d)
	}
	s.probe(ctx, 0, 100)

	left, right := 0, 100
	iterations := 0
	for ; iterations < SplitMaxIterations && right-left > 2; iterations++ {
		third := (right - left) / 3
		m1, m2 := left+third, right-third
		s.probe(ctx, m1, m2)

		f1, f2 := s.out(m1), s.out(m2)
		f0, f100 := s.out(0), s.out(100)
		switch c := f1.Cmp(f2); {
		case c < 0:
			if f0.Cmp(f1) > 0 && f0.Cmp(f2) > 0 && f0.Cmp(f100) > 0 {
				right = m2
			} else {
				left = m1
			}
		case c > 0:
			if f100.Cmp(f1) > 0 && f100.Cmp(f2) > 0 && f100.Cmp(f0) > 0 {
				left = m1
			} else {
				right = m2
			}
		default:
			right = m2
		}
	}

	// settle the last bracket at one-point precision
	var rest []int
	for d := left; d <= right; d++ {
		rest = append(rest, d)
	}
	s.probe(ctx, rest...)

	res := &SplitResult{
		Best:       s.best,
		Iterations: iterations,
		Tested:     make(map[int]*big.Int, len(s.tested)),
	}
	for d, v := range s.tested {
		res.Tested[d] = v.TotalOut
	}
	if s.best != nil {
		res.BestDistribution = s.best.Distribution
		res.BestAmount = new(big.Int).Set(s.best.TotalOut)
	}

	metrics.SplitSearchIterations.Observe(float64(iterations))
	metrics.SplitSearchProbes.Observe(float64(len(s.tested)))
	metrics.SplitSearchDuration.Observe(time.Since(start).Seconds())
	log.Debug().
		Str("dexA", p.DexA).
		Str("dexB", p.DexB).
		Int("best", res.BestDistribution).
		Int("iterations", iterations).
		Int("probes", len(s.tested)).
		Msg("[Aggregator] split search done")
	return res, nil
}

// GetSplitQuote returns a composite quote dividing the order between the
// adapters of two full quotes, or nil when no interior split beats the
// better single quote.
func (a *Aggregator) GetSplitQuote(ctx context.Context, quoteA, quoteB *domain.SwapQuote, slippage float64, onProgress func(*Distribution)) (*domain.SwapQuote, error) {
	if err := validateSplitPair(quoteA, quoteB); err != nil {
		return nil, err
	}
	p := SplitParams{
		InputToken:  quoteA.InputToken,
		OutputToken: quoteA.OutputToken,
		TotalAmount: quoteA.InputAmount,
		Slippage:    slippage,
		DexA:        quoteA.DexID,
		DexB:        quoteB.DexID,
		StandardA:   quoteA.Standard,
		StandardB:   quoteB.Standard,
		OnProgress:  onProgress,
	}
	seed := []*Distribution{
		{Distribution: 0, TotalOut: new(big.Int).Set(quoteA.ExpectedOrZero()), QuoteA: quoteA},
		{Distribution: 100, TotalOut: new(big.Int).Set(quoteB.ExpectedOrZero()), QuoteB: quoteB},
	}
	res, err := a.findBestSplit(ctx, p, seed)
	if err != nil {
		return nil, err
	}

	bestSingle := quoteA.ExpectedOrZero()
	if quoteB.ExpectedOrZero().Cmp(bestSingle) > 0 {
		bestSingle = quoteB.ExpectedOrZero()
	}
	best := res.Best
	switch {
	case best == nil || best.Distribution <= 0 || best.Distribution >= 100:
		metrics.SplitQuotes.WithLabelValues("endpoint").Inc()
		return nil, nil
	case best.TotalOut.Cmp(bestSingle) <= 0:
		metrics.SplitQuotes.WithLabelValues("not_better").Inc()
		return nil, nil
	case best.QuoteA == nil || best.QuoteB == nil:
		metrics.SplitQuotes.WithLabelValues("missing_leg").Inc()
		return nil, nil
	}
	metrics.SplitQuotes.WithLabelValues("built").Inc()
	return BuildSplitQuote(best), nil
}

func validateSplitPair(qa, qb *domain.SwapQuote) error {
	switch {
	case qa == nil || qb == nil:
		return fmt.Errorf("%w: split needs two quotes", dex.ErrInvalidQuote)
	case qa.DexID == qb.DexID:
		return fmt.Errorf("%w: split needs two different dexes", dex.ErrInvalidQuote)
	case qa.IsSplitQuote || qb.IsSplitQuote:
		return fmt.Errorf("%w: cannot split a split quote", dex.ErrInvalidQuote)
	case qa.InputToken != qb.InputToken || qa.OutputToken != qb.OutputToken:
		return fmt.Errorf("%w: quotes are for different pairs", dex.ErrInvalidQuote)
	case qa.InputAmount == nil || qb.InputAmount == nil || qa.InputAmount.Cmp(qb.InputAmount) != 0:
		return fmt.Errorf("%w: quotes are for different amounts", dex.ErrInvalidQuote)
	}
	return nil
}

func addInt(dst, v *big.Int) {
	if v != nil {
		dst.Add(dst, v)
	}
}

// BuildSplitQuote assembles the composite quote of a two-leg distribution.
// Amounts and fees are summed, the dex fee is input-weighted and the price
// impact is the worst leg's.
func BuildSplitQuote(d *Distribution) *domain.SwapQuote {
	legs := []*domain.SwapQuote{d.QuoteA, d.QuoteB}
	q := &domain.SwapQuote{
		DexID:                SplitDexID,
		DexName:              d.QuoteA.DexName + " + " + d.QuoteB.DexName,
		InputToken:           d.QuoteA.InputToken,
		OutputToken:          d.QuoteA.OutputToken,
		InputAmount:          new(big.Int),
		EffectiveInputAmount: new(big.Int),
		ExpectedOutput:       new(big.Int),
		MinimumOutput:        new(big.Int),
		FeeBreakdown: domain.FeeBreakdown{
			InputTransferFees:    new(big.Int),
			OutputWithdrawalFees: new(big.Int),
			DexTradingFee:        new(big.Int),
		},
		Standard:     d.QuoteA.Standard,
		Timestamp:    time.Now(),
		IsSplitQuote: true,
		Distribution: d.Distribution,
		Legs:         legs,
	}

	var weighted, spot float64
	totalIn := 0.0
	for _, leg := range legs {
		addInt(q.InputAmount, leg.InputAmount)
		addInt(q.EffectiveInputAmount, leg.EffectiveInputAmount)
		addInt(q.ExpectedOutput, leg.ExpectedOutput)
		addInt(q.MinimumOutput, leg.MinimumOutput)
		addInt(q.FeeBreakdown.InputTransferFees, leg.FeeBreakdown.InputTransferFees)
		addInt(q.FeeBreakdown.OutputWithdrawalFees, leg.FeeBreakdown.OutputWithdrawalFees)
		addInt(q.FeeBreakdown.DexTradingFee, leg.FeeBreakdown.DexTradingFee)
		q.FeeBreakdown.InputFeeCount += leg.FeeBreakdown.InputFeeCount
		q.FeeBreakdown.OutputFeeCount += leg.FeeBreakdown.OutputFeeCount
		q.PriceImpact = max(q.PriceImpact, leg.PriceImpact)
		q.Route = append(q.Route, leg.Route...)

		w, _ := new(big.Float).SetInt(leg.InputAmount).Float64()
		weighted += leg.DexFeePercent * w
		spot += leg.SpotPrice * w
		totalIn += w
	}
	if totalIn > 0 {
		q.DexFeePercent = weighted / totalIn
		q.SpotPrice = spot / totalIn
	}
	return q
}

// BestQuote is the ranked single-dex quotes plus the split of the top two
// when it earns its place.
type BestQuote struct {
	Quotes []*domain.SwapQuote
	Split  *domain.SwapQuote
}

func (b *BestQuote) Best() *domain.SwapQuote {
	if b.Split != nil {
		return b.Split
	}
	if len(b.Quotes) > 0 {
		return b.Quotes[0]
	}
	return nil
}

// GetBestQuote ranks single-dex quotes and, when withSplit is set and at
// least two dexes answered, tries splitting between the top two.
func (a *Aggregator) GetBestQuote(ctx context.Context, p QuoteParams, withSplit bool) (*BestQuote, error) {
	quotes, err := a.GetQuotes(ctx, p)
	if err != nil {
		return nil, err
	}
	res := &BestQuote{Quotes: quotes}
	if !withSplit || len(quotes) < 2 {
		return res, nil
	}
	split, err := a.GetSplitQuote(ctx, quotes[0], quotes[1], p.Slippage, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[Aggregator] split quote failed")
		return res, nil
	}
	res.Split = split
	return res, nil
}

// Distributions lists the tested points in ascending order.
func (r *SplitResult) Distributions() []int {
	out := make([]int, 0, len(r.Tested))
	for d := range r.Tested {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
