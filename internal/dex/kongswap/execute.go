package kongswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

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

	start := time.Now()
	var res *domain.SwapResult
	switch q.Standard {
	case domain.StandardICRC2:
		res = a.swapApproved(ctx, q, in, out, effective, req.Slippage, req.OnProgress)
	default:
		res = a.swapTransferred(ctx, q, in, out, effective, req.Slippage, req.OnProgress)
	}

	status := "success"
	if !res.Success {
		status = "failed"
	}
	metrics.SwapRequests.WithLabelValues(DexID, q.Standard.String(), status).Inc()
	metrics.SwapDuration.WithLabelValues(DexID).Observe(time.Since(start).Seconds())
	return res, nil
}

// freshMinimum re-quotes the route so execution never relies on a stale bound.
func (a *Adapter) freshMinimum(ctx context.Context, in, out string, effective *big.Int, slippage float64) (*big.Int, error) {
	reply, err := a.backend.SwapAmounts(ctx, tokenRef(in), effective, tokenRef(out))
	if err != nil {
		return nil, dex.QuoteError(DexID, err)
	}
	if reply.ReceiveAmount == nil {
		return nil, dex.QuoteError(DexID, errors.New("empty receive amount"))
	}
	return dex.MinimumOutput(reply.ReceiveAmount, slippage), nil
}

func (a *Adapter) failed(tr *dex.Tracker, err error) *domain.SwapResult {
	a.logger.Warn().Err(err).Msg("[KongSwap] swap failed")
	tr.Fail(err)
	return domain.FailedResult(err)
}

// swapApproved: CHECKING_ALLOWANCE -> [APPROVING] -> SWAPPING -> [CLAIMING].
func (a *Adapter) swapApproved(ctx context.Context, q *domain.SwapQuote, in, out *domain.TokenInfo, effective *big.Int, slippage float64, onProgress domain.ProgressFunc) *domain.SwapResult {
	tr := dex.NewTracker(onProgress, 3)

	minOut, err := a.freshMinimum(ctx, q.InputToken, q.OutputToken, effective, slippage)
	if err != nil {
		return a.failed(tr, err)
	}
	ledger := a.ledgers.Ledger(in.LedgerID)
	if ledger == nil {
		return a.failed(tr, fmt.Errorf("no ledger client for %s", in.LedgerID))
	}
	need := new(big.Int).Add(effective, in.FeeOrZero())
	owner := rpc.Account{Owner: a.owner}
	spender := rpc.Account{Owner: a.backend.CanisterID()}
	if err := dex.EnsureAllowance(ctx, tr, ledger, owner, spender, need, in.Fee); err != nil {
		return a.failed(tr, err)
	}

	tr.Step(domain.StepSwapping, fmt.Sprintf("Swapping %s %s for %s", effective, in.Symbol, out.Symbol))
	reply, err := a.backend.Swap(ctx, a.swapArgs(q.InputToken, q.OutputToken, effective, minOut, nil, slippage))
	if err != nil {
		return a.failed(tr, fmt.Errorf("%w: %w", dex.ErrSwapFailed, err))
	}
	return a.settle(ctx, tr, reply, out)
}

// swapTransferred: TRANSFERRING -> SWAPPING -> [CLAIMING]. The swap call
// references the transfer by block index.
func (a *Adapter) swapTransferred(ctx context.Context, q *domain.SwapQuote, in, out *domain.TokenInfo, effective *big.Int, slippage float64, onProgress domain.ProgressFunc) *domain.SwapResult {
	tr := dex.NewTracker(onProgress, 2)

	minOut, err := a.freshMinimum(ctx, q.InputToken, q.OutputToken, effective, slippage)
	if err != nil {
		return a.failed(tr, err)
	}
	ledger := a.ledgers.Ledger(in.LedgerID)
	if ledger == nil {
		return a.failed(tr, fmt.Errorf("no ledger client for %s", in.LedgerID))
	}

	tr.Step(domain.StepTransferring, fmt.Sprintf("Transferring %s %s to %s", effective, in.Symbol, DexName))
	block, err := ledger.Transfer(ctx, rpc.TransferArgs{
		To:     rpc.Account{Owner: a.backend.CanisterID()},
		Amount: effective,
		Fee:    in.Fee,
	})
	if err != nil {
		return a.failed(tr, fmt.Errorf("transfer: %w", err))
	}

	rec := &domain.PendingTransferRecord{
		DexID:        DexID,
		BlockIndex:   block,
		InputToken:   q.InputToken,
		OutputToken:  q.OutputToken,
		Amount:       effective,
		MinAmountOut: minOut,
		Standard:     q.Standard,
		Timestamp:    time.Now(),
	}
	saveErr := a.pending.Save(rec)
	if saveErr != nil {
		a.logger.Error().Err(saveErr).Str("block", block.String()).Msg("[KongSwap] failed to record pending transfer")
	}

	tr.Step(domain.StepSwapping, fmt.Sprintf("Swapping %s %s for %s", effective, in.Symbol, out.Symbol))
	reply, err := a.backend.Swap(ctx, a.swapArgs(q.InputToken, q.OutputToken, effective, minOut, block, slippage))
	if err != nil {
		a.logger.Warn().Err(err).Str("block", block.String()).Bool("recorded", saveErr == nil).Msg("[KongSwap] swap failed after transfer")
		return dex.FailedAfterTransfer(tr, rec, err, saveErr)
	}
	if saveErr == nil {
		if err := a.pending.Remove(rec.Key); err != nil {
			a.logger.Error().Err(err).Str("key", rec.Key).Msg("[KongSwap] failed to clear pending transfer")
		}
	}
	return a.settle(ctx, tr, reply, out)
}

func (a *Adapter) swapArgs(in, out string, amount, minOut, payTx *big.Int, slippage float64) rpc.RoutedSwapArgs {
	args := rpc.RoutedSwapArgs{
		PayToken:      tokenRef(in),
		PayAmount:     amount,
		PayTxID:       payTx,
		ReceiveToken:  tokenRef(out),
		ReceiveAmount: minOut,
	}
	if slippage > 0 {
		pct := slippage * 100
		args.MaxSlippage = &pct
	}
	return args
}

// settle claims undelivered proceeds and completes the swap. A failed claim
// is kept for RetryClaims and never fails the swap.
func (a *Adapter) settle(ctx context.Context, tr *dex.Tracker, reply *rpc.RoutedSwapReply, out *domain.TokenInfo) *domain.SwapResult {
	if len(reply.ClaimIDs) > 0 {
		tr.Step(domain.StepClaiming, fmt.Sprintf("Claiming %d pending payout(s)", len(reply.ClaimIDs)))
		for _, id := range reply.ClaimIDs {
			if err := a.backend.Claim(ctx, id); err != nil {
				a.recordClaim(id, out.LedgerID, err)
			}
		}
	}

	amount := reply.ReceiveAmount
	if amount == nil {
		amount = new(big.Int)
	}
	tr.Complete(fmt.Sprintf("Received %s %s", amount, out.Symbol), reply.TxID)
	return &domain.SwapResult{Success: true, AmountOut: amount, TxID: reply.TxID}
}

// ResumePending replays the swap call against the recorded transfer block.
func (a *Adapter) ResumePending(ctx context.Context, rec *domain.PendingTransferRecord, onProgress domain.ProgressFunc) (*domain.SwapResult, error) {
	if rec == nil || rec.DexID != DexID {
		return nil, fmt.Errorf("%w: pending record is not for %s", dex.ErrInvalidQuote, DexID)
	}
	out, err := a.tokens.GetTokenInfo(ctx, rec.OutputToken)
	if err != nil {
		return nil, err
	}

	tr := dex.NewTracker(onProgress, 1)
	tr.Step(domain.StepSwapping, fmt.Sprintf("Resuming swap for block %s", rec.BlockIndex))
	reply, err := a.backend.Swap(ctx, a.swapArgs(rec.InputToken, rec.OutputToken, rec.Amount, rec.MinAmountOut, rec.BlockIndex, 0))
	if err != nil {
		metrics.ResumeAttempts.WithLabelValues(DexID, "failed").Inc()
		a.logger.Warn().Err(err).Str("key", rec.Key).Msg("[KongSwap] resume failed")
		return dex.FailedAfterTransfer(tr, rec, err, nil), nil
	}
	metrics.ResumeAttempts.WithLabelValues(DexID, "success").Inc()
	if err := a.pending.Remove(rec.Key); err != nil {
		a.logger.Error().Err(err).Str("key", rec.Key).Msg("[KongSwap] failed to clear resumed transfer")
	}
	return a.settle(ctx, tr, reply, out), nil
}
