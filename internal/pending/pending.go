// Package pending keeps the crash-recovery record of single-transfer swaps
// whose funds left the user's account before the swap call was acknowledged.
package pending

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

const Namespace = "pending"

var ErrPendingNotFound = errors.New("pending transfer not found")

type Cache struct {
	store store.Store
}

// New namespaces s under Namespace. Pass the shared durable store.
func New(s store.Store) *Cache {
	c := &Cache{store: store.Prefixed(s, Namespace)}
	c.refreshGauge()
	return c
}

// Key identifies a transfer by dex, pair and ledger block.
func Key(dexID, inputToken, outputToken string, block *big.Int) string {
	b := "0"
	if block != nil {
		b = block.String()
	}
	return fmt.Sprintf("%s:%s:%s:%s", dexID, inputToken, outputToken, b)
}

// Save writes rec, filling in its key when empty.
func (c *Cache) Save(rec *domain.PendingTransferRecord) error {
	if rec.Key == "" {
		rec.Key = Key(rec.DexID, rec.InputToken, rec.OutputToken, rec.BlockIndex)
	}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode pending %s: %w", rec.Key, err)
	}
	if err := c.store.Set(rec.Key, data); err != nil {
		return fmt.Errorf("save pending %s: %w", rec.Key, err)
	}
	c.refreshGauge()
	return nil
}

func (c *Cache) Get(key string) (*domain.PendingTransferRecord, error) {
	data, ok, err := c.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPendingNotFound, key)
	}
	var rec domain.PendingTransferRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode pending %s: %w", key, err)
	}
	return &rec, nil
}

func (c *Cache) Remove(key string) error {
	if err := c.store.Remove(key); err != nil {
		return err
	}
	c.refreshGauge()
	return nil
}

// List returns every record, oldest first. Undecodable entries are skipped.
func (c *Cache) List() ([]*domain.PendingTransferRecord, error) {
	all, err := c.store.All()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.PendingTransferRecord, 0, len(all))
	for key, data := range all {
		var rec domain.PendingTransferRecord
		if err := sonic.Unmarshal(data, &rec); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("[PendingCache] skipping corrupt record")
			continue
		}
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Key < out[j].Key
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (c *Cache) refreshGauge() {
	all, err := c.store.All()
	if err != nil {
		return
	}
	metrics.PendingTransfers.Set(float64(len(all)))
}
