package pending

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

func record(block int64, ts time.Time) *domain.PendingTransferRecord {
	return &domain.PendingTransferRecord{
		DexID:        "icpswap",
		PoolID:       "pool-1",
		BlockIndex:   big.NewInt(block),
		InputToken:   "ledger-a",
		OutputToken:  "ledger-b",
		Amount:       big.NewInt(990_000),
		MinAmountOut: big.NewInt(1_975_050),
		Standard:     domain.StandardICRC1,
		Timestamp:    ts,
	}
}

func TestCacheLifecycle(t *testing.T) {
	backing := store.NewMemory()
	c := New(backing)

	now := time.Unix(1_700_000_000, 0).UTC()
	newer := record(8, now.Add(time.Minute))
	older := record(7, now)
	require.NoError(t, c.Save(newer))
	require.NoError(t, c.Save(older))

	assert.Equal(t, "icpswap:ledger-a:ledger-b:7", older.Key)

	got, err := c.Get(older.Key)
	require.NoError(t, err)
	assert.Equal(t, "pool-1", got.PoolID)
	assert.Equal(t, int64(1_975_050), got.MinAmountOut.Int64())

	list, err := c.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.Key, list[0].Key)

	require.NoError(t, c.Remove(older.Key))
	_, err = c.Get(older.Key)
	assert.ErrorIs(t, err, ErrPendingNotFound)

	// records live under their own namespace of the shared store
	_, ok, err := backing.Get(Namespace + ":" + newer.Key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheSkipsCorruptEntries(t *testing.T) {
	backing := store.NewMemory()
	require.NoError(t, backing.Set(Namespace+":broken", []byte("{")))
	c := New(backing)
	require.NoError(t, c.Save(record(1, time.Now())))

	list, err := c.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
