package icpswap

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

// swapPlan is everything both execution paths need once pre-flight checks pass.
type swapPlan struct {
	quote      *domain.SwapQuote
	in, out    *domain.TokenInfo
	ref        *rpc.PoolRef
	pool       rpc.Pool
	zeroForOne bool
	effective  *big.Int
	slippage   float64
}

func (a *Adapter) ExecuteSwap(ctx context.Context, req dex.SwapRequest) (*domain.SwapResult, error) {
	q := req.Quote
	if err := dex.ValidateQuote(a, q); err != nil {
		return nil, err
	}
	in, out, err := dex.TokenPair(ctx, a.tokens, q.InputToken, q.OutputToken)
	if err != nil {
		return nil, err
	}
	effective, _, err := dex.EffectiveInput(q.InputAmount, in.Fee, a.InputFeeCount(q.Standard))
	if err != nil {
		return nil, err
	}
	ref, err := a.pool(ctx, q.InputToken, q.OutputToken)
	if err != nil {
		return nil, err
	}

	plan := &swapPlan{
		quote:      q,
		in:         in,
		out:        out,
		ref:        ref,
		pool:       a.pools.Pool(ref.CanisterID),
		zeroForOne: ref.Token0.Address == q.InputToken,
		effective:  effective,
		slippage:   req.Slippage,
	}

	start := time.Now()
	var res *domain.SwapResult
	switch q.Standard {
	case domain.StandardICRC2:
		res = a.swapApproved(ctx, plan, req.OnProgress)
	default:
		res = a.swapTransferred(ctx, plan, req.OnProgress)
	}

	status := "success"
	if !res.Success {
		status = "failed"
	}
	metrics.SwapRequests.WithLabelValues(DexID, q.Standard.String(), status).Inc()
	metrics.SwapDuration.WithLabelValues(DexID).Observe(time.Since(start).Seconds())
	return res, nil
}

// poolMinimum re-quotes the pool and returns the bound passed to the pool:
// the slippage-adjusted output plus the withdrawal fee still to be charged.
func (a *Adapter) poolMinimum(ctx context.Context, p *swapPlan) (*big.Int, error) {
	raw, err := p.pool.Quote(ctx, rpc.PoolQuoteArgs{
		AmountIn:         p.effective,
		ZeroForOne:       p.zeroForOne,
		AmountOutMinimum: new(big.Int),
	})
	if err != nil {
		return nil, dex.QuoteError(DexID, err)
	}
	expected, outFees := dex.OutputAfterFees(raw, p.out.Fee, a.OutputFeeCount(p.quote.Standard))
	min := dex.MinimumOutput(expected, p.slippage)
	return min.Add(min, outFees), nil
}

func (a *Adapter) swapArgs(p *swapPlan, amountIn, minOut *big.Int) rpc.DepositAndSwapArgs {
	return rpc.DepositAndSwapArgs{
		ZeroForOne:       p.zeroForOne,
		AmountIn:         amountIn,
		AmountOutMinimum: minOut,
		TokenInFee:       p.in.FeeOrZero(),
		TokenOutFee:      p.out.FeeOrZero(),
	}
}

func (a *Adapter) failed(tr *dex.Tracker, err error) *domain.SwapResult {
	a.logger.Warn().Err(err).Msg("[ICPSwap] swap failed")
	tr.Fail(err)
	return domain.FailedResult(err)
}

func (a *Adapter) succeeded(tr *dex.Tracker, p *swapPlan, rawOut *big.Int) *domain.SwapResult {
	received, _ := dex.OutputAfterFees(rawOut, p.out.Fee, a.OutputFeeCount(p.quote.Standard))
	tr.Complete(fmt.Sprintf("Swapped %s %s for %s %s", p.quote.InputAmount, p.in.Symbol, received, p.out.Symbol), "")
	return &domain.SwapResult{Success: true, AmountOut: received}
}

// swapApproved: CHECKING_ALLOWANCE -> [APPROVING] -> SWAPPING.
func (a *Adapter) swapApproved(ctx context.Context, p *swapPlan, onProgress domain.ProgressFunc) *domain.SwapResult {
	tr := dex.NewTracker(onProgress, 3)

	minOut, err := a.poolMinimum(ctx, p)
	if err != nil {
		return a.failed(tr, err)
	}

	ledger := a.ledgers.Ledger(p.in.LedgerID)
	if ledger == nil {
		return a.failed(tr, fmt.Errorf("no ledger client for %s", p.in.LedgerID))
	}
	need := new(big.Int).Add(p.effective, p.in.FeeOrZero())
	owner := rpc.Account{Owner: a.owner}
	spender := rpc.Account{Owner: p.ref.CanisterID}
	if err := dex.EnsureAllowance(ctx, tr, ledger, owner, spender, need, p.in.Fee); err != nil {
		return a.failed(tr, err)
	}

	tr.Step(domain.StepSwapping, fmt.Sprintf("Swapping on %s", p.ref.CanisterID))
	rawOut, err := p.pool.DepositFromAndSwap(ctx, a.swapArgs(p, p.effective, minOut))
	if err != nil {
		return a.failed(tr, fmt.Errorf("%w: %w", dex.ErrSwapFailed, err))
	}
	return a.succeeded(tr, p, rawOut)
}

// swapTransferred: TRANSFERRING -> SWAPPING. The pending record bridges the
// gap between the two calls.
func (a *Adapter) swapTransferred(ctx context.Context, p *swapPlan, onProgress domain.ProgressFunc) *domain.SwapResult {
	tr := dex.NewTracker(onProgress, 2)

	minOut, err := a.poolMinimum(ctx, p)
	if err != nil {
		return a.failed(tr, err)
	}
	ledger := a.ledgers.Ledger(p.in.LedgerID)
	if ledger == nil {
		return a.failed(tr, fmt.Errorf("no ledger client for %s", p.in.LedgerID))
	}
	sub, err := rpc.PrincipalSubaccount(a.owner)
	if err != nil {
		return a.failed(tr, err)
	}

	// the deposit into the pool charges one more fee
	amount := new(big.Int).Add(p.effective, p.in.FeeOrZero())
	tr.Step(domain.StepTransferring, fmt.Sprintf("Transferring %s %s to pool", amount, p.in.Symbol))
	block, err := ledger.Transfer(ctx, rpc.TransferArgs{
		To:     rpc.Account{Owner: p.ref.CanisterID, Subaccount: sub},
		Amount: amount,
		Fee:    p.in.Fee,
	})
	if err != nil {
		return a.failed(tr, fmt.Errorf("transfer: %w", err))
	}

	rec := &domain.PendingTransferRecord{
		DexID:        DexID,
		PoolID:       p.ref.CanisterID,
		BlockIndex:   block,
		InputToken:   p.quote.InputToken,
		OutputToken:  p.quote.OutputToken,
		Amount:       p.effective,
		MinAmountOut: minOut,
		Standard:     p.quote.Standard,
		Timestamp:    time.Now(),
	}
	saveErr := a.pending.Save(rec)
	if saveErr != nil {
		a.logger.Error().Err(saveErr).Str("block", block.String()).Msg("[ICPSwap] failed to record pending transfer")
	}

	tr.Step(domain.StepSwapping, fmt.Sprintf("Swapping on %s", p.ref.CanisterID))
	rawOut, err := p.pool.DepositAndSwap(ctx, a.swapArgs(p, p.effective, minOut))
	if err != nil {
		a.logger.Warn().Err(err).Str("block", block.String()).Bool("recorded", saveErr == nil).Msg("[ICPSwap] swap failed after transfer")
		return dex.FailedAfterTransfer(tr, rec, err, saveErr)
	}
	if saveErr == nil {
		if err := a.pending.Remove(rec.Key); err != nil {
			a.logger.Error().Err(err).Str("key", rec.Key).Msg("[ICPSwap] failed to clear pending transfer")
		}
	}
	res := a.succeeded(tr, p, rawOut)
	res.TxID = block.String()
	return res
}

// ResumePending replays depositAndSwap for a transfer that already reached
// the pool subaccount. Funds are never transferred again.
func (a *Adapter) ResumePending(ctx context.Context, rec *domain.PendingTransferRecord, onProgress domain.ProgressFunc) (*domain.SwapResult, error) {
	if rec == nil || rec.DexID != DexID {
		return nil, fmt.Errorf("%w: pending record is not for %s", dex.ErrInvalidQuote, DexID)
	}
	in, out, err := dex.TokenPair(ctx, a.tokens, rec.InputToken, rec.OutputToken)
	if err != nil {
		return nil, err
	}
	ref, err := a.pool(ctx, rec.InputToken, rec.OutputToken)
	if err != nil {
		return nil, err
	}
	if rec.PoolID != "" && rec.PoolID != ref.CanisterID {
		return nil, fmt.Errorf("%w: pending record targets pool %s, current pool is %s", dex.ErrInvalidQuote, rec.PoolID, ref.CanisterID)
	}

	p := &swapPlan{
		quote:      &domain.SwapQuote{InputAmount: rec.Amount, Standard: rec.Standard},
		in:         in,
		out:        out,
		ref:        ref,
		pool:       a.pools.Pool(ref.CanisterID),
		zeroForOne: ref.Token0.Address == rec.InputToken,
		effective:  rec.Amount,
	}
	tr := dex.NewTracker(onProgress, 1)
	tr.Step(domain.StepSwapping, fmt.Sprintf("Resuming swap for block %s", rec.BlockIndex))

	rawOut, err := p.pool.DepositAndSwap(ctx, a.swapArgs(p, rec.Amount, rec.MinAmountOut))
	if err != nil {
		metrics.ResumeAttempts.WithLabelValues(DexID, "failed").Inc()
		a.logger.Warn().Err(err).Str("key", rec.Key).Msg("[ICPSwap] resume failed")
		return dex.FailedAfterTransfer(tr, rec, err, nil), nil
	}
	metrics.ResumeAttempts.WithLabelValues(DexID, "success").Inc()
	if err := a.pending.Remove(rec.Key); err != nil {
		a.logger.Error().Err(err).Str("key", rec.Key).Msg("[ICPSwap] failed to clear resumed transfer")
	}
	res := a.succeeded(tr, p, rawOut)
	res.TxID = rec.BlockIndex.String()
	return res, nil
}
