// Package tokens resolves ledger metadata and picks the transfer standard a
// DEX adapter uses for a token.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

const (
	MetaSymbol   = "icrc1:symbol"
	MetaName     = "icrc1:name"
	MetaDecimals = "icrc1:decimals"
	MetaFee      = "icrc1:fee"
	MetaLogo     = "icrc1:logo"
)

// Resolver fetches and caches TokenInfo by ledger id. Entries live for the
// whole process and are refreshed only through Invalidate or ClearCache.
type Resolver struct {
	ledgers rpc.LedgerProvider
	persist store.Store

	mu    sync.RWMutex
	infos map[string]*domain.TokenInfo
}

// NewResolver builds a resolver. persist may be nil; when set, metadata is
// also written there and reloaded on start.
func NewResolver(ledgers rpc.LedgerProvider, persist store.Store) *Resolver {
	r := &Resolver{
		ledgers: ledgers,
		persist: persist,
		infos:   make(map[string]*domain.TokenInfo),
	}
	r.loadPersisted()
	return r
}

func (r *Resolver) loadPersisted() {
	if r.persist == nil {
		return
	}
	all, err := r.persist.All()
	if err != nil {
		log.Warn().Err(err).Msg("[TokenResolver] failed to load token cache")
		return
	}
	for ledgerID, raw := range all {
		var info domain.TokenInfo
		if err := sonic.Unmarshal(raw, &info); err != nil {
			log.Warn().Str("ledger", ledgerID).Err(err).Msg("[TokenResolver] dropping unreadable cache entry")
			continue
		}
		r.infos[ledgerID] = &info
	}
	metrics.TokenCacheSize.Set(float64(len(r.infos)))
}

// Seed stores known metadata without a ledger round trip.
func (r *Resolver) Seed(info *domain.TokenInfo) {
	r.put(info)
}

func (r *Resolver) GetTokenInfo(ctx context.Context, ledgerID string) (*domain.TokenInfo, error) {
	r.mu.RLock()
	info, ok := r.infos[ledgerID]
	r.mu.RUnlock()
	if ok {
		return info, nil
	}

	info, err := r.fetch(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	r.put(info)
	return info, nil
}

// fetch queries metadata, fee and standards concurrently. Only metadata is
// mandatory: older ledgers lack the standards endpoint and the fee is also
// published as metadata.
func (r *Resolver) fetch(ctx context.Context, ledgerID string) (*domain.TokenInfo, error) {
	ledger := r.ledgers.Ledger(ledgerID)
	if ledger == nil {
		return nil, fmt.Errorf("no ledger client for %s", ledgerID)
	}

	var (
		meta      []rpc.MetadataEntry
		fee       *big.Int
		standards []rpc.StandardRecord
		metaErr   error
		feeErr    error
		stdErr    error
	)

	var g errgroup.Group
	g.Go(func() error {
		meta, metaErr = ledger.Metadata(ctx)
		return nil
	})
	g.Go(func() error {
		fee, feeErr = ledger.Fee(ctx)
		return nil
	})
	g.Go(func() error {
		standards, stdErr = ledger.SupportedStandards(ctx)
		return nil
	})
	_ = g.Wait()

	if metaErr != nil {
		return nil, fmt.Errorf("failed to fetch metadata for %s: %w", ledgerID, metaErr)
	}

	info := &domain.TokenInfo{LedgerID: ledgerID}
	for _, entry := range meta {
		switch entry.Key {
		case MetaSymbol:
			info.Symbol = metaString(entry.Value)
		case MetaName:
			info.Name = metaString(entry.Value)
		case MetaLogo:
			info.Logo = metaString(entry.Value)
		case MetaDecimals:
			if d, ok := metaInt(entry.Value); ok && d.IsUint64() && d.Uint64() <= math.MaxUint8 {
				info.Decimals = uint8(d.Uint64())
			}
		case MetaFee:
			if f, ok := metaInt(entry.Value); ok {
				info.Fee = f
			}
		}
	}

	switch {
	case feeErr == nil && fee != nil:
		info.Fee = fee
	case info.Fee == nil:
		return nil, fmt.Errorf("failed to fetch fee for %s: %w", ledgerID, feeErr)
	}

	if stdErr != nil {
		log.Debug().Str("ledger", ledgerID).Err(stdErr).Msg("[TokenResolver] standards unavailable, assuming ICRC1")
	}
	names := make([]string, 0, len(standards))
	for _, s := range standards {
		names = append(names, s.Name)
	}
	info.Standards = CanonicalStandards(names)

	return info, nil
}

func (r *Resolver) put(info *domain.TokenInfo) {
	r.mu.Lock()
	r.infos[info.LedgerID] = info
	size := len(r.infos)
	r.mu.Unlock()
	metrics.TokenCacheSize.Set(float64(size))

	if r.persist == nil {
		return
	}
	data, err := sonic.Marshal(info)
	if err != nil {
		log.Warn().Str("ledger", info.LedgerID).Err(err).Msg("[TokenResolver] failed to marshal token info")
		return
	}
	if err := r.persist.Set(info.LedgerID, data); err != nil {
		log.Warn().Str("ledger", info.LedgerID).Err(err).Msg("[TokenResolver] failed to persist token info")
	}
}

// Invalidate drops one ledger so the next lookup refetches it.
func (r *Resolver) Invalidate(ledgerID string) {
	r.mu.Lock()
	delete(r.infos, ledgerID)
	size := len(r.infos)
	r.mu.Unlock()
	metrics.TokenCacheSize.Set(float64(size))
	if r.persist != nil {
		_ = r.persist.Remove(ledgerID)
	}
}

func (r *Resolver) ClearCache() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.infos))
	for id := range r.infos {
		ids = append(ids, id)
	}
	r.infos = make(map[string]*domain.TokenInfo)
	r.mu.Unlock()
	metrics.TokenCacheSize.Set(0)

	if r.persist != nil {
		for _, id := range ids {
			_ = r.persist.Remove(id)
		}
	}
}

func (r *Resolver) CachedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.infos)
}

func metaString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}

func metaInt(v any) (*big.Int, bool) {
	switch t := v.(type) {
	case *big.Int:
		return new(big.Int).Set(t), t.Sign() >= 0
	case uint8:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint64:
		return new(big.Int).SetUint64(t), true
	case int:
		return big.NewInt(int64(t)), t >= 0
	case int64:
		return big.NewInt(t), t >= 0
	case float64:
		if t < 0 || t != math.Trunc(t) {
			return nil, false
		}
		n, _ := new(big.Float).SetFloat64(t).Int(nil)
		return n, true
	case json.Number:
		n, ok := new(big.Int).SetString(t.String(), 10)
		return n, ok && n.Sign() >= 0
	case string:
		n, ok := new(big.Int).SetString(t, 10)
		return n, ok && n.Sign() >= 0
	default:
		return nil, false
	}
}
