package domain

import (
	"math/big"
	"time"
)

type RouteStep struct {
	DexID       string   `json:"dexId"`
	PoolID      string   `json:"poolId"`
	InputToken  string   `json:"inputToken"`
	OutputToken string   `json:"outputToken"`
	AmountIn    *big.Int `json:"amountIn"`
	AmountOut   *big.Int `json:"amountOut"`
}

type FeeBreakdown struct {
	InputTransferFees    *big.Int `json:"inputTransferFees"`
	OutputWithdrawalFees *big.Int `json:"outputWithdrawalFees"`
	DexTradingFee        *big.Int `json:"dexTradingFee"`
	InputFeeCount        int      `json:"inputFeeCount"`
	OutputFeeCount       int      `json:"outputFeeCount"`
}

// SwapQuote is an immutable quote against live pool state. Split quotes carry
// one sub-quote per leg in Legs and the percentage sent to the second leg in
// Distribution.
type SwapQuote struct {
	DexID                string       `json:"dexId"`
	DexName              string       `json:"dexName"`
	InputToken           string       `json:"inputToken"`
	OutputToken          string       `json:"outputToken"`
	InputAmount          *big.Int     `json:"inputAmount"`
	EffectiveInputAmount *big.Int     `json:"effectiveInputAmount"`
	ExpectedOutput       *big.Int     `json:"expectedOutput"`
	MinimumOutput        *big.Int     `json:"minimumOutput"`
	SpotPrice            float64      `json:"spotPrice"`
	PriceImpact          float64      `json:"priceImpact"`
	DexFeePercent        float64      `json:"dexFeePercent"`
	FeeBreakdown         FeeBreakdown `json:"feeBreakdown"`
	Standard             Standard     `json:"standard"`
	Route                []RouteStep  `json:"route"`
	Timestamp            time.Time    `json:"timestamp"`

	IsSplitQuote bool         `json:"isSplitQuote,omitempty"`
	Distribution int          `json:"distribution,omitempty"`
	Legs         []*SwapQuote `json:"legs,omitempty"`
}

// Clone returns a shallow copy; big.Int fields are shared and must not be mutated.
func (q *SwapQuote) Clone() *SwapQuote {
	if q == nil {
		return nil
	}
	c := *q
	if q.Route != nil {
		c.Route = append([]RouteStep(nil), q.Route...)
	}
	if q.Legs != nil {
		c.Legs = append([]*SwapQuote(nil), q.Legs...)
	}
	return &c
}

// WithStandard returns a copy of q bound to std.
func (q *SwapQuote) WithStandard(std Standard) *SwapQuote {
	c := q.Clone()
	c.Standard = std
	return c
}

// ExpectedOrZero never returns nil.
func (q *SwapQuote) ExpectedOrZero() *big.Int {
	if q == nil || q.ExpectedOutput == nil {
		return new(big.Int)
	}
	return q.ExpectedOutput
}

// Hops returns the number of pools the quote routes through.
func (q *SwapQuote) Hops() int {
	return len(q.Route)
}
