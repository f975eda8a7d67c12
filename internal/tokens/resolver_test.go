package tokens

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/rpc/rpctest"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

func TestGetTokenInfo(t *testing.T) {
	ledger := rpctest.NewLedger("ckBTC", 8, 10, "ICRC-1", "icrc_2", "ICRC-3")
	r := NewResolver(rpctest.Ledgers{"ck": ledger}, nil)

	info, err := r.GetTokenInfo(context.Background(), "ck")
	require.NoError(t, err)
	assert.Equal(t, "ck", info.LedgerID)
	assert.Equal(t, "ckBTC", info.Symbol)
	assert.Equal(t, "ckBTC token", info.Name)
	assert.Equal(t, uint8(8), info.Decimals)
	assert.Equal(t, "10", info.Fee.String())
	assert.Equal(t, []domain.Standard{domain.StandardICRC2, domain.StandardICRC1}, info.Standards)

	// served from cache
	_, err = r.GetTokenInfo(context.Background(), "ck")
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.Calls("metadata"))
	assert.Equal(t, 1, r.CachedCount())
}

func TestGetTokenInfoFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(l *rpctest.Ledger)
		wantErr   bool
		wantFee   string
		wantStds  []domain.Standard
		wantCache int
	}{
		{
			name:      "standards endpoint missing assumes ICRC1",
			setup:     func(l *rpctest.Ledger) { l.StandardsErr = errors.New("no such method") },
			wantFee:   "10",
			wantStds:  []domain.Standard{domain.StandardICRC1},
			wantCache: 1,
		},
		{
			name:      "fee endpoint failing uses metadata fee",
			setup:     func(l *rpctest.Ledger) { l.FeeErr = errors.New("timeout") },
			wantFee:   "10",
			wantStds:  []domain.Standard{domain.StandardICRC2, domain.StandardICRC1},
			wantCache: 1,
		},
		{
			name:    "metadata failing is fatal",
			setup:   func(l *rpctest.Ledger) { l.MetadataErr = errors.New("rejected") },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := rpctest.NewLedger("TKN", 6, 10, "ICRC-1", "ICRC-2")
			tt.setup(ledger)
			r := NewResolver(rpctest.Ledgers{"tkn": ledger}, nil)

			info, err := r.GetTokenInfo(context.Background(), "tkn")
			if tt.wantErr {
				require.Error(t, err)
				assert.Zero(t, r.CachedCount())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, info.Fee.String())
			assert.Equal(t, tt.wantStds, info.Standards)
			assert.Equal(t, tt.wantCache, r.CachedCount())
		})
	}
}

func TestGetTokenInfoUnknownLedger(t *testing.T) {
	r := NewResolver(rpctest.Ledgers{}, nil)
	_, err := r.GetTokenInfo(context.Background(), "nope")
	require.Error(t, err)
}

func TestResolverPersistence(t *testing.T) {
	db := store.NewMemory()
	ledger := rpctest.NewLedger("ICP", 8, 10000, "ICRC-1")

	first := NewResolver(rpctest.Ledgers{"icp": ledger}, db)
	_, err := first.GetTokenInfo(context.Background(), "icp")
	require.NoError(t, err)
	assert.Equal(t, 1, db.Len())

	// a fresh resolver over the same store needs no ledger
	second := NewResolver(rpctest.Ledgers{}, db)
	info, err := second.GetTokenInfo(context.Background(), "icp")
	require.NoError(t, err)
	assert.Equal(t, "ICP", info.Symbol)
	assert.Equal(t, "10000", info.Fee.String())

	second.Invalidate("icp")
	assert.Zero(t, db.Len())
	_, err = second.GetTokenInfo(context.Background(), "icp")
	assert.Error(t, err)

	first.Seed(&domain.TokenInfo{LedgerID: "x", Symbol: "X", Fee: big.NewInt(1)})
	assert.Equal(t, 2, first.CachedCount())
	first.ClearCache()
	assert.Zero(t, first.CachedCount())
	assert.Zero(t, db.Len())
}

func TestMetaInt(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{uint64(8), "8", true},
		{big.NewInt(12), "12", true},
		{float64(6), "6", true},
		{float64(6.5), "", false},
		{"340282366920938463463374607431768211455", "340282366920938463463374607431768211455", true},
		{int(-1), "", false},
		{true, "", false},
	}
	for _, tt := range tests {
		got, ok := metaInt(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got.String())
		}
	}
}
