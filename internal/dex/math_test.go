package dex

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEffectiveInput(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		fee     int64
		count   int
		want    int64
		wantErr error
	}{
		{name: "two fees", amount: 1_000_000, fee: 10_000, count: 2, want: 980_000},
		{name: "one fee", amount: 1_000_000, fee: 10_000, count: 1, want: 990_000},
		{name: "exactly consumed", amount: 20_000, fee: 10_000, count: 2, wantErr: ErrAmountTooSmall},
		{name: "below fees", amount: 5, fee: 10_000, count: 1, wantErr: ErrAmountTooSmall},
		{name: "no fee", amount: 7, fee: 0, count: 2, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fees, err := EffectiveInput(big.NewInt(tt.amount), big.NewInt(tt.fee), tt.count)
			assert.Equal(t, tt.fee*int64(tt.count), fees.Int64())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestOutputAfterFeesFloorsAtZero(t *testing.T) {
	out, fees := OutputAfterFees(big.NewInt(2_000_000), big.NewInt(5_000), 1)
	assert.Equal(t, int64(1_995_000), out.Int64())
	assert.Equal(t, int64(5_000), fees.Int64())

	out, _ = OutputAfterFees(big.NewInt(3), big.NewInt(5_000), 1)
	assert.Zero(t, out.Sign())
}

func TestMinimumOutput(t *testing.T) {
	assert.Equal(t, int64(1_975_050), MinimumOutput(big.NewInt(1_995_000), 0.01).Int64())
	// ceil(101 * 0.01) = 2
	assert.Equal(t, int64(99), MinimumOutput(big.NewInt(101), 0.01).Int64())
	assert.Equal(t, int64(500), MinimumOutput(big.NewInt(500), 0).Int64())
	assert.Zero(t, MinimumOutput(big.NewInt(500), 1).Sign())
	assert.Zero(t, MinimumOutput(nil, 0.01).Sign())
}

func TestMinimumOutputProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		expected := big.NewInt(rapid.Int64Range(0, 1<<50).Draw(t, "expected"))
		bps := rapid.IntRange(0, 10_000).Draw(t, "bps")
		slippage := float64(bps) / 10_000

		min := MinimumOutput(expected, slippage)
		if min.Sign() < 0 || min.Cmp(expected) > 0 {
			t.Fatalf("min %s outside [0, %s]", min, expected)
		}
		exact := decimal.NewFromBigInt(expected, 0).Mul(decimal.NewFromInt(int64(bps))).Div(decimal.NewFromInt(10_000))
		tolerance := decimal.NewFromBigInt(new(big.Int).Sub(expected, min), 0)
		if tolerance.LessThan(exact) || tolerance.Sub(exact).GreaterThanOrEqual(decimal.NewFromInt(1)) {
			t.Fatalf("tolerance %s is not ceil(%s)", tolerance, exact)
		}
	})
}

func TestPriceImpact(t *testing.T) {
	// spot 2.0, 100 in at 0.3% fee, raw 190 out
	impact := PriceImpact(2.0, big.NewInt(100_000_000), big.NewInt(19_000_000_000), 6, 8, 0.003)
	want := 1 - (190.0/(100*0.997))/2.0
	assert.InDelta(t, want, impact, 1e-9)

	assert.Zero(t, PriceImpact(2.0, big.NewInt(100), big.NewInt(1_000), 0, 0, 0))
	assert.Zero(t, PriceImpact(0, big.NewInt(100), big.NewInt(10), 0, 0, 0))
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, "1.5", ToUnits(big.NewInt(150_000_000), 8).String())
	assert.Equal(t, int64(150_000_000), FromUnits(decimal.RequireFromString("1.5"), 8).Int64())
	assert.Equal(t, int64(1_000_000), OneUnit(6).Int64())
}

func TestPriceImpactSeverity(t *testing.T) {
	tests := []struct {
		bps  uint16
		want PriceImpactSeverity
	}{
		{0, SeverityNone},
		{99, SeverityNone},
		{100, SeverityLow},
		{300, SeverityModerate},
		{500, SeverityHigh},
		{1000, SeverityExtreme},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetPriceImpactSeverity(tt.bps), "bps=%d", tt.bps)
	}
	assert.Empty(t, GetPriceImpactWarning(10))
	assert.Equal(t, uint16(250), ImpactBps(0.025))
}
