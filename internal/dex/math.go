package dex

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// TransferFees is count × fee.
func TransferFees(count int, fee *big.Int) *big.Int {
	if fee == nil || count <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Mul(fee, big.NewInt(int64(count)))
}

// EffectiveInput deducts the input-side transfer fees. It fails with
// ErrAmountTooSmall when nothing is left to swap.
func EffectiveInput(amount *big.Int, fee *big.Int, count int) (*big.Int, *big.Int, error) {
	fees := TransferFees(count, fee)
	if amount == nil {
		return nil, fees, ErrAmountTooSmall
	}
	effective := new(big.Int).Sub(amount, fees)
	if effective.Sign() <= 0 {
		return nil, fees, ErrAmountTooSmall
	}
	return effective, fees, nil
}

// OutputAfterFees deducts the output-side transfer fees from a raw pool
// output, floored at zero.
func OutputAfterFees(raw *big.Int, fee *big.Int, count int) (*big.Int, *big.Int) {
	fees := TransferFees(count, fee)
	if raw == nil {
		return new(big.Int), fees
	}
	out := new(big.Int).Sub(raw, fees)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out, fees
}

// MinimumOutput is expected − ceil(expected × slippage), floored at zero.
// Slippage is a fraction and is clamped to [0, 1].
func MinimumOutput(expected *big.Int, slippage float64) *big.Int {
	if expected == nil || expected.Sign() <= 0 {
		return new(big.Int)
	}
	if math.IsNaN(slippage) || slippage < 0 {
		slippage = 0
	}
	if slippage > 1 {
		slippage = 1
	}

	tolerance := decimal.NewFromBigInt(expected, 0).Mul(decimal.NewFromFloat(slippage)).Ceil().BigInt()
	min := new(big.Int).Sub(expected, tolerance)
	if min.Sign() < 0 {
		min.SetInt64(0)
	}
	return min
}

// ToUnits converts base units into a human amount.
func ToUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// FromUnits converts a human amount into base units, truncating dust.
func FromUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// OneUnit is 10^decimals base units.
func OneUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// ExecutionPrice is output per input in human units.
func ExecutionPrice(amountIn, amountOut *big.Int, decIn, decOut uint8) float64 {
	in := ToUnits(amountIn, decIn)
	if in.IsZero() {
		return 0
	}
	p, _ := ToUnits(amountOut, decOut).Div(in).Float64()
	return p
}

// PriceImpact is the fractional shortfall of the execution price against the
// spot price. The trading fee is removed from the input first so only market
// impact remains. Favourable executions report zero.
func PriceImpact(spot float64, amountIn, rawOut *big.Int, decIn, decOut uint8, feeFraction float64) float64 {
	if spot <= 0 || amountIn == nil || rawOut == nil || amountIn.Sign() <= 0 {
		return 0
	}
	in := ToUnits(amountIn, decIn)
	if feeFraction > 0 && feeFraction < 1 {
		in = in.Mul(decimal.NewFromFloat(1 - feeFraction))
	}
	if in.IsZero() {
		return 0
	}
	exec, _ := ToUnits(rawOut, decOut).Div(in).Float64()
	impact := 1 - exec/spot
	if impact < 0 || math.IsNaN(impact) {
		return 0
	}
	return impact
}
