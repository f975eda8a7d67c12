package icpswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
	"github.com/hxuan190/dex-aggregator/internal/store"
)

var (
	q96                 = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	errInvalidSqrtPrice = errors.New("invalid sqrtPriceX96")
)

func poolKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "pool:" + a + ":" + b
}

func tokenPoolsKey(token string) string {
	return "tokenpools:" + token
}

func poolToken(info *domain.TokenInfo) rpc.PoolToken {
	std := domain.StandardICRC1
	if info.Supports(domain.StandardICRC2) {
		std = domain.StandardICRC2
	}
	return rpc.PoolToken{Address: info.LedgerID, Standard: std.String()}
}

// pool resolves the pool for an unordered pair at the configured fee tier:
// cached id first, then the factory.
func (a *Adapter) pool(ctx context.Context, tokenA, tokenB string) (*rpc.PoolRef, error) {
	key := poolKey(tokenA, tokenB)
	if data, ok, err := a.cache.Get(key); err == nil && ok {
		var ref rpc.PoolRef
		if err := sonic.Unmarshal(data, &ref); err == nil && ref.Fee == a.feeTier {
			metrics.PoolCacheHits.WithLabelValues(DexID).Inc()
			return &ref, nil
		}
	}
	metrics.PoolCacheMisses.WithLabelValues(DexID).Inc()

	infoA, infoB, err := dex.TokenPair(ctx, a.tokens, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	t0, t1 := poolToken(infoA), poolToken(infoB)
	if t0.Address > t1.Address {
		t0, t1 = t1, t0
	}
	ref, err := a.factory.GetPool(ctx, t0, t1, a.feeTier)
	if err != nil {
		return nil, dex.Wrap(DexID, "getPool", err)
	}
	if ref == nil || ref.CanisterID == "" {
		return nil, dex.Wrap(DexID, "getPool", fmt.Errorf("%w: %s/%s", dex.ErrNoPoolForPair, tokenA, tokenB))
	}

	if data, err := sonic.Marshal(ref); err == nil {
		if err := a.cache.Set(key, data); err != nil {
			a.logger.Warn().Err(err).Str("pool", ref.CanisterID).Msg("[ICPSwap] failed to cache pool id")
		}
	}
	return ref, nil
}

// loadPools pulls every pool from the factory and writes the pool-id and
// pools-by-token caches in one batch. Only pools at the configured fee tier
// are indexed since quotes and swaps never use another tier.
func (a *Adapter) loadPools(ctx context.Context) (map[string][]domain.Pair, error) {
	refs, err := a.factory.GetPools(ctx)
	if err != nil {
		return nil, dex.Wrap(DexID, "getPools", err)
	}

	byToken := make(map[string][]domain.Pair)
	entries := make(map[string][]byte, len(refs)*3)
	indexed := 0
	for _, ref := range refs {
		if ref.CanisterID == "" || ref.Fee != a.feeTier {
			continue
		}
		indexed++
		t0, t1 := ref.Token0.Address, ref.Token1.Address
		byToken[t0] = append(byToken[t0], domain.Pair{DexID: DexID, InputToken: t0, OutputToken: t1, PoolID: ref.CanisterID})
		byToken[t1] = append(byToken[t1], domain.Pair{DexID: DexID, InputToken: t1, OutputToken: t0, PoolID: ref.CanisterID})
		if data, err := sonic.Marshal(ref); err == nil {
			entries[poolKey(t0, t1)] = data
		}
	}
	for token, pairs := range byToken {
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].OutputToken < pairs[j].OutputToken })
		if data, err := sonic.Marshal(pairs); err == nil {
			entries[tokenPoolsKey(token)] = data
		}
	}
	if err := store.SetMany(a.cache, entries); err != nil {
		a.logger.Warn().Err(err).Msg("[ICPSwap] failed to persist pool index")
	}

	a.mu.Lock()
	a.indexLoaded = true
	a.mu.Unlock()
	a.logger.Info().Int("pools", indexed).Int("skipped", len(refs)-indexed).Uint32("feeTier", a.feeTier).Int("tokens", len(byToken)).Msg("[ICPSwap] pool index loaded")
	return byToken, nil
}

// priceFromSqrtX96 converts a pool's sqrtPriceX96 into the human price of
// token0 in token1.
func priceFromSqrtX96(sqrtPriceX96 *big.Int, dec0, dec1 uint8) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, errInvalidSqrtPrice
	}
	sp, overflow := uint256.FromBig(sqrtPriceX96)
	if overflow {
		return decimal.Zero, errInvalidSqrtPrice
	}
	priceX96, overflow := new(uint256.Int).MulDivOverflow(sp, sp, q96)
	if overflow {
		return decimal.Zero, errInvalidSqrtPrice
	}
	raw := decimal.NewFromBigInt(priceX96.ToBig(), 0).DivRound(decimal.NewFromBigInt(q96.ToBig(), 0), 36)
	return raw.Shift(int32(dec0) - int32(dec1)), nil
}

func (a *Adapter) spotFromPool(ctx context.Context, pool rpc.Pool, ref *rpc.PoolRef, in, out *domain.TokenInfo) (float64, error) {
	meta, err := pool.Metadata(ctx)
	if err != nil {
		return 0, dex.Wrap(DexID, "metadata", err)
	}
	token0 := meta.Token0.Address
	if token0 == "" {
		token0 = ref.Token0.Address
	}

	var price decimal.Decimal
	if in.LedgerID == token0 {
		price, err = priceFromSqrtX96(meta.SqrtPriceX96, in.Decimals, out.Decimals)
	} else {
		price, err = priceFromSqrtX96(meta.SqrtPriceX96, out.Decimals, in.Decimals)
		if err == nil && !price.IsZero() {
			price = decimal.NewFromInt(1).DivRound(price, 36)
		}
	}
	if err != nil {
		return 0, dex.Wrap(DexID, "spotPrice", err)
	}
	f, _ := price.Float64()
	return f, nil
}
