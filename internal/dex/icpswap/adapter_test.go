package icpswap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/pending"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
	"github.com/hxuan190/dex-aggregator/internal/rpc/rpctest"
	"github.com/hxuan190/dex-aggregator/internal/store"
	"github.com/hxuan190/dex-aggregator/internal/tokens"
)

const (
	tokenA = "ledger-a"
	tokenB = "ledger-b"
	tokenC = "ledger-c"
	poolAB = "pool-ab"
	owner  = "2vxsx-fae"
)

type fixture struct {
	adapter *Adapter
	ledgers rpctest.Ledgers
	factory *rpctest.Factory
	pool    *rpctest.Pool
	pools   rpctest.Pools
	pending *pending.Cache
	backing *store.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPending(t, nil)
}

// newFixtureWithPending backs the pending cache with s instead of the shared
// memory store.
func newFixtureWithPending(t *testing.T, s store.Store) *fixture {
	t.Helper()
	ledgers := rpctest.Ledgers{
		tokenA: rpctest.NewLedger("AAA", 8, 10_000, "ICRC-1", "ICRC-2"),
		tokenB: rpctest.NewLedger("BBB", 8, 5_000, "ICRC-1", "ICRC-2"),
		tokenC: rpctest.NewLedger("CCC", 8, 1_000, "ICRC-1"),
	}
	ref := rpc.PoolRef{
		CanisterID: poolAB,
		Token0:     rpc.PoolToken{Address: tokenA, Standard: "ICRC2"},
		Token1:     rpc.PoolToken{Address: tokenB, Standard: "ICRC2"},
		Fee:        DefaultFeeTier,
	}
	// sqrtPriceX96 = 2 * 2^96, i.e. one A is worth four B
	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 97)
	pool := rpctest.LinearPool(&rpc.PoolMetadata{
		Token0:       ref.Token0,
		Token1:       ref.Token1,
		Fee:          DefaultFeeTier,
		SqrtPriceX96: sqrtPrice,
	}, 100, 49)

	backing := store.NewMemory()
	if s == nil {
		s = backing
	}
	pend := pending.New(s)
	factory := rpctest.NewFactory(ref)
	pools := rpctest.Pools{poolAB: pool}
	a := New(Deps{
		Factory: factory,
		Pools:   pools,
		Ledgers: ledgers,
		Tokens:  tokens.NewResolver(ledgers, nil),
		Pending: pend,
		Cache:   backing,
		Owner:   owner,
	})
	return &fixture{adapter: a, ledgers: ledgers, factory: factory, pool: pool, pools: pools, pending: pend, backing: backing}
}

func quoteReq(amount int64, std domain.Standard) dex.QuoteRequest {
	return dex.QuoteRequest{
		InputToken:  tokenA,
		OutputToken: tokenB,
		Amount:      big.NewInt(amount),
		Standard:    std,
		Slippage:    0.01,
	}
}

func collect(events *[]domain.SwapProgress) domain.ProgressFunc {
	return func(p domain.SwapProgress) { *events = append(*events, p) }
}

func steps(events []domain.SwapProgress) []domain.SwapStep {
	out := make([]domain.SwapStep, 0, len(events))
	for _, e := range events {
		out = append(out, e.Step)
	}
	return out
}

func TestGetQuoteFeeAccounting(t *testing.T) {
	f := newFixture(t)

	q, err := f.adapter.GetQuote(context.Background(), quoteReq(1_000_000, domain.StandardICRC2))
	require.NoError(t, err)

	assert.Equal(t, int64(980_000), q.EffectiveInputAmount.Int64())
	assert.Equal(t, int64(1_995_000), q.ExpectedOutput.Int64())
	assert.Equal(t, int64(1_975_050), q.MinimumOutput.Int64())
	assert.Equal(t, int64(20_000), q.FeeBreakdown.InputTransferFees.Int64())
	assert.Equal(t, int64(5_000), q.FeeBreakdown.OutputWithdrawalFees.Int64())
	assert.Equal(t, int64(2_940), q.FeeBreakdown.DexTradingFee.Int64())
	assert.Equal(t, 2, q.FeeBreakdown.InputFeeCount)
	assert.Equal(t, 1, q.FeeBreakdown.OutputFeeCount)
	assert.InDelta(t, 0.3, q.DexFeePercent, 1e-12)
	assert.InDelta(t, 4.0, q.SpotPrice, 1e-9)
	assert.Greater(t, q.PriceImpact, 0.0)

	require.Len(t, q.Route, 1)
	assert.Equal(t, poolAB, q.Route[0].PoolID)
	assert.Equal(t, int64(2_000_000), q.Route[0].AmountOut.Int64())
}

func TestGetQuoteErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("amount below fees", func(t *testing.T) {
		_, err := f.adapter.GetQuote(ctx, quoteReq(20_000, domain.StandardICRC2))
		assert.ErrorIs(t, err, dex.ErrAmountTooSmall)
	})

	t.Run("no pool", func(t *testing.T) {
		req := quoteReq(1_000_000, domain.StandardICRC1)
		req.OutputToken = tokenC
		_, err := f.adapter.GetQuote(ctx, req)
		assert.ErrorIs(t, err, dex.ErrNoPoolForPair)
		assert.Equal(t, DexID, dex.DexIDOf(err))
	})

	t.Run("token lacks standard", func(t *testing.T) {
		req := quoteReq(1_000_000, domain.StandardICRC2)
		req.InputToken = tokenC
		_, err := f.adapter.GetQuote(ctx, req)
		assert.ErrorIs(t, err, dex.ErrIncompatibleStandard)
	})
}

func TestPoolLookupIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.adapter.HasPair(ctx, tokenB, tokenA)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.adapter.HasPair(ctx, tokenA, tokenB)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.factory.GetCalls())

	ok, err = f.adapter.HasPair(ctx, tokenA, tokenC)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPairsForToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pairs, err := f.adapter.GetPairsForToken(ctx, tokenB)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, domain.Pair{DexID: DexID, InputToken: tokenB, OutputToken: tokenA, PoolID: poolAB}, pairs[0])

	// served from the persisted index afterwards
	f.factory.ListErr = assert.AnError
	pairs, err = f.adapter.GetPairsForToken(ctx, tokenA)
	require.NoError(t, err)
	assert.Len(t, pairs, 1)

	pairs, err = f.adapter.GetPairsForToken(ctx, tokenC)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestPoolIndexKeepsConfiguredFeeTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a thin 1% pool for the same pair, listed after the 0.3% one
	thin := rpc.PoolRef{
		CanisterID: "thin-10000",
		Token0:     rpc.PoolToken{Address: tokenA, Standard: "ICRC2"},
		Token1:     rpc.PoolToken{Address: tokenB, Standard: "ICRC2"},
		Fee:        10_000,
	}
	f.factory.Add(thin)
	f.pools[thin.CanisterID] = rpctest.LinearPool(&rpc.PoolMetadata{Token0: thin.Token0, Token1: thin.Token1, Fee: thin.Fee, SqrtPriceX96: f.pool.Meta.SqrtPriceX96}, 1, 64)

	before, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC2))
	require.NoError(t, err)
	require.Len(t, before.Route, 1)
	assert.Equal(t, poolAB, before.Route[0].PoolID)

	pairs, err := f.adapter.GetPairsForToken(ctx, tokenA)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, poolAB, pairs[0].PoolID)

	after, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC2))
	require.NoError(t, err)
	require.Len(t, after.Route, 1)
	assert.Equal(t, poolAB, after.Route[0].PoolID)
	assert.Equal(t, before.ExpectedOutput.String(), after.ExpectedOutput.String())
	assert.InDelta(t, 0.3, after.DexFeePercent, 1e-12)

	// a fresh adapter over the persisted index resolves the same pool
	f2 := New(Deps{
		Factory: f.factory,
		Pools:   f.pools,
		Ledgers: f.ledgers,
		Tokens:  tokens.NewResolver(f.ledgers, nil),
		Pending: f.pending,
		Cache:   f.backing,
		Owner:   owner,
	})
	f.factory.GetErr = assert.AnError
	q, err := f2.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC2))
	require.NoError(t, err)
	assert.Equal(t, poolAB, q.Route[0].PoolID)
}

func TestHasPairFallsBackToPoolIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("pool lookup failing, pair listed", func(t *testing.T) {
		f := newFixture(t)
		f.factory.GetErr = assert.AnError

		ok, err := f.adapter.HasPair(ctx, tokenA, tokenB)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, f.factory.GetCalls())

		ok, err = f.adapter.HasPair(ctx, tokenA, tokenC)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("both factory calls failing", func(t *testing.T) {
		f := newFixture(t)
		f.factory.GetErr = assert.AnError
		f.factory.ListErr = assert.AnError

		ok, err := f.adapter.HasPair(ctx, tokenA, tokenB)
		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, ok)
	})
}

func TestGetSpotPriceBothDirections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.adapter.GetSpotPrice(ctx, tokenA, tokenB)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, p, 1e-9)

	p, err = f.adapter.GetSpotPrice(ctx, tokenB, tokenA)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p, 1e-9)
}

func TestPriceFromSqrtX96Decimals(t *testing.T) {
	// raw price 1 with token0 at 8 decimals and token1 at 6
	price, err := priceFromSqrtX96(new(big.Int).Lsh(big.NewInt(1), 96), 8, 6)
	require.NoError(t, err)
	assert.Equal(t, "100", price.String())

	_, err = priceFromSqrtX96(big.NewInt(0), 8, 8)
	assert.Error(t, err)
}

func TestExecuteSwapApprovePath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC2))
	require.NoError(t, err)

	var events []domain.SwapProgress
	res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01, OnProgress: collect(&events)})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(1_995_000), res.AmountOut.Int64())

	assert.Equal(t, []domain.SwapStep{
		domain.StepCheckingAllowance,
		domain.StepApproving,
		domain.StepSwapping,
		domain.StepComplete,
	}, steps(events))

	ledgerA := f.ledgers[tokenA]
	require.Len(t, ledgerA.Approvals, 1)
	assert.Equal(t, int64(990_000), ledgerA.Approvals[0].Amount.Int64())
	assert.Equal(t, poolAB, ledgerA.Approvals[0].Spender.Owner)

	require.Len(t, f.pool.DepositFromAndSwapCalls, 1)
	call := f.pool.DepositFromAndSwapCalls[0]
	assert.Equal(t, int64(980_000), call.AmountIn.Int64())
	assert.Equal(t, int64(1_980_050), call.AmountOutMinimum.Int64())
	assert.True(t, call.ZeroForOne)
}

func TestExecuteSwapSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledgers[tokenA].SetAllowance(poolAB, 5_000_000)

	q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC2))
	require.NoError(t, err)

	var events []domain.SwapProgress
	res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01, OnProgress: collect(&events)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, f.ledgers[tokenA].Approvals)
	assert.Equal(t, []domain.SwapStep{domain.StepCheckingAllowance, domain.StepSwapping, domain.StepComplete}, steps(events))
	assert.Equal(t, 2, events[len(events)-1].TotalSteps)
}

func TestExecuteSwapRejectedSwapReturnsFailedResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC2))
	require.NoError(t, err)
	f.pool.FailSwaps = 1

	var events []domain.SwapProgress
	res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01, OnProgress: collect(&events)})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Zero(t, res.AmountOut.Sign())
	assert.Contains(t, res.Error, rpctest.ErrInterrupted.Error())

	last := events[len(events)-1]
	assert.Equal(t, domain.StepFailed, last.Step)
	assert.True(t, last.Failed)
}

func TestExecuteSwapTransferPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC1))
	require.NoError(t, err)

	var events []domain.SwapProgress
	res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01, OnProgress: collect(&events)})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.TxID)
	assert.Equal(t, []domain.SwapStep{domain.StepTransferring, domain.StepSwapping, domain.StepComplete}, steps(events))

	transfers := f.ledgers[tokenA].Transfers
	require.Len(t, transfers, 1)
	assert.Equal(t, int64(990_000), transfers[0].Amount.Int64())
	assert.Equal(t, poolAB, transfers[0].To.Owner)
	assert.Len(t, transfers[0].To.Subaccount, 32)

	list, err := f.pending.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInterruptedTransferSwapCanResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC1))
	require.NoError(t, err)

	f.pool.FailSwaps = 1
	res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01})
	require.NoError(t, err)
	require.False(t, res.Success)

	list, err := f.pending.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	rec := list[0]
	assert.Equal(t, DexID, rec.DexID)
	assert.Equal(t, poolAB, rec.PoolID)
	assert.Equal(t, int64(980_000), rec.Amount.Int64())

	var events []domain.SwapProgress
	res, err = f.adapter.ResumePending(ctx, rec, collect(&events))
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(1_995_000), res.AmountOut.Int64())
	assert.Equal(t, []domain.SwapStep{domain.StepSwapping, domain.StepComplete}, steps(events))

	list, err = f.pending.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Len(t, f.ledgers[tokenA].Transfers, 1, "resume must not transfer again")
	assert.Len(t, f.pool.DepositAndSwapCalls, 2)
}

func TestExecuteSwapValidatesQuote(t *testing.T) {
	f := newFixture(t)
	_, err := f.adapter.ExecuteSwap(context.Background(), dex.SwapRequest{Quote: &domain.SwapQuote{DexID: "other"}})
	assert.ErrorIs(t, err, dex.ErrInvalidQuote)
}

// readOnlyStore rejects every write.
type readOnlyStore struct {
	*store.Memory
}

var errDiskFull = errors.New("disk full")

func (readOnlyStore) Set(string, []byte) error { return errDiskFull }

func TestTransferSwapFailureKeepsBlockReference(t *testing.T) {
	ctx := context.Background()

	t.Run("recorded transfer carries its pending key", func(t *testing.T) {
		f := newFixture(t)
		q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC1))
		require.NoError(t, err)
		f.pool.FailSwaps = 1

		var events []domain.SwapProgress
		res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01, OnProgress: collect(&events)})
		require.NoError(t, err)
		require.False(t, res.Success)
		assert.Equal(t, "101", res.TxID)

		list, err := f.pending.List()
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, list[0].Key, res.PendingKey)

		last := events[len(events)-1]
		assert.True(t, last.Failed)
		assert.Equal(t, "101", last.TxID)
	})

	t.Run("unrecorded transfer is reported", func(t *testing.T) {
		f := newFixtureWithPending(t, readOnlyStore{store.NewMemory()})
		q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC1))
		require.NoError(t, err)
		f.pool.FailSwaps = 1

		res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01})
		require.NoError(t, err)
		require.False(t, res.Success)
		assert.Equal(t, "101", res.TxID)
		assert.Empty(t, res.PendingKey)
		assert.Contains(t, res.Error, dex.ErrTransferNotRecorded.Error())
		assert.Contains(t, res.Error, errDiskFull.Error())
		assert.Contains(t, res.Error, rpctest.ErrInterrupted.Error())
		assert.Len(t, f.ledgers[tokenA].Transfers, 1)
	})

	t.Run("unrecorded transfer still swaps", func(t *testing.T) {
		f := newFixtureWithPending(t, readOnlyStore{store.NewMemory()})
		q, err := f.adapter.GetQuote(ctx, quoteReq(1_000_000, domain.StandardICRC1))
		require.NoError(t, err)

		res, err := f.adapter.ExecuteSwap(ctx, dex.SwapRequest{Quote: q, Slippage: 0.01})
		require.NoError(t, err)
		assert.True(t, res.Success, res.Error)
		assert.Equal(t, int64(1_995_000), res.AmountOut.Int64())
	})
}
