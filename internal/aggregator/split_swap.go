package aggregator

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/dex-aggregator/internal/common"
	"github.com/hxuan190/dex-aggregator/internal/dex"
	"github.com/hxuan190/dex-aggregator/internal/domain"
	"github.com/hxuan190/dex-aggregator/internal/metrics"
)

// legTracker folds per-leg progress into one combined event stream.
type legTracker struct {
	mu     sync.Mutex
	legs   []domain.LegProgress
	emit   domain.ProgressFunc
	failed map[int]string
}

func newLegTracker(legs []*domain.SwapQuote, emit domain.ProgressFunc) *legTracker {
	t := &legTracker{
		legs:   make([]domain.LegProgress, len(legs)),
		emit:   emit,
		failed: make(map[int]string),
	}
	for i, q := range legs {
		t.legs[i] = domain.LegProgress{
			DexID:    q.DexID,
			DexName:  q.DexName,
			Progress: domain.SwapProgress{Step: domain.StepSwapping, TotalSteps: 1},
		}
	}
	return t
}

func (t *legTracker) forLeg(i int) domain.ProgressFunc {
	return func(p domain.SwapProgress) { t.update(i, p) }
}

func (t *legTracker) update(i int, p domain.SwapProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.legs[i].Progress = p
	t.emit.Emit(t.combined())
}

func (t *legTracker) settled(i int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.legs[i].Progress.Step.Terminal()
}

// combined stays SWAPPING until every leg is terminal.
func (t *legTracker) combined() domain.SwapProgress {
	c := domain.SwapProgress{Step: domain.StepSwapping}
	done, failures := 0, []string{}
	for _, l := range t.legs {
		c.StepIndex += l.Progress.StepIndex
		c.TotalSteps += l.Progress.TotalSteps
		if l.Progress.Step.Terminal() {
			done++
		}
		if l.Progress.Failed || l.Progress.Step == domain.StepFailed {
			failures = append(failures, fmt.Sprintf("%s: %s", l.DexName, l.Progress.Error))
		}
	}
	c.Legs = append([]domain.LegProgress(nil), t.legs...)

	switch {
	case done < len(t.legs):
		c.Message = fmt.Sprintf("%d of %d legs settled", done, len(t.legs))
	case len(failures) == 0:
		c.Step = domain.StepComplete
		c.Completed = true
		c.Message = "All legs completed"
	default:
		c.Step = domain.StepFailed
		c.Failed = true
		c.Error = strings.Join(failures, "; ")
		c.Message = fmt.Sprintf("%d of %d legs failed", len(failures), len(t.legs))
	}
	return c
}

// executeSplit runs every leg with a positive input concurrently. One leg's
// failure never cancels another; the caller gets an itemized result.
func (a *Aggregator) executeSplit(ctx context.Context, q *domain.SwapQuote, slippage float64, onProgress domain.ProgressFunc) (*domain.SwapResult, error) {
	var legs []*domain.SwapQuote
	for _, leg := range q.Legs {
		if leg != nil && leg.InputAmount != nil && leg.InputAmount.Sign() > 0 {
			legs = append(legs, leg)
		}
	}
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: split quote has no executable legs", dex.ErrInvalidQuote)
	}
	adapters := make([]dex.Adapter, len(legs))
	for i, leg := range legs {
		adapter, err := a.Dex(leg.DexID)
		if err != nil {
			return nil, err
		}
		adapters[i] = adapter
	}

	execID := uuid.NewString()
	start := time.Now()
	log.Info().Str("exec", execID).Int("legs", len(legs)).Int("distribution", q.Distribution).Msg("[Aggregator] executing split swap")

	tracker := newLegTracker(legs, onProgress)
	tasks := make([]func(context.Context) (*domain.SwapResult, error), len(legs))
	for i, leg := range legs {
		tasks[i] = func(ctx context.Context) (*domain.SwapResult, error) {
			return adapters[i].ExecuteSwap(ctx, dex.SwapRequest{
				Quote:      leg,
				Slippage:   slippage,
				OnProgress: tracker.forLeg(i),
			})
		}
	}
	settled := common.SettleAll(ctx, 0, tasks)

	res := &domain.SwapResult{Success: true, AmountOut: new(big.Int), Legs: make([]domain.LegResult, len(legs))}
	var failures []string
	for i, s := range settled {
		leg := legs[i]
		lr := domain.LegResult{
			DexID:       leg.DexID,
			DexName:     leg.DexName,
			InputAmount: leg.InputAmount,
			AmountOut:   new(big.Int),
		}
		switch {
		case !s.OK():
			lr.Error = s.Err.Error()
		case s.Value == nil:
			lr.Error = "no result"
		default:
			lr.Success = s.Value.Success
			lr.TxID = s.Value.TxID
			lr.PendingKey = s.Value.PendingKey
			lr.Error = s.Value.Error
			if s.Value.Success && s.Value.AmountOut != nil {
				lr.AmountOut.Set(s.Value.AmountOut)
			}
		}

		// a leg that errored before moving funds never emitted a terminal step
		if !tracker.settled(i) {
			p := domain.SwapProgress{Step: domain.StepComplete, Completed: true, TxID: lr.TxID}
			if !lr.Success {
				p = domain.SwapProgress{Step: domain.StepFailed, Failed: true, Error: lr.Error, Message: lr.Error}
			}
			tracker.update(i, p)
		}

		if !lr.Success {
			res.Success = false
			failures = append(failures, fmt.Sprintf("%s: %s", lr.DexName, lr.Error))
		}
		res.AmountOut.Add(res.AmountOut, lr.AmountOut)
		res.Legs[i] = lr
	}
	if len(failures) > 0 {
		res.Error = fmt.Errorf("%w: %s", dex.ErrSwapFailed, strings.Join(failures, "; ")).Error()
	}

	status := "success"
	if !res.Success {
		status = "failed"
	}
	metrics.SwapRequests.WithLabelValues(SplitDexID, string(q.Standard), status).Inc()
	metrics.SwapDuration.WithLabelValues(SplitDexID).Observe(time.Since(start).Seconds())
	log.Info().Str("exec", execID).Bool("success", res.Success).Str("amountOut", res.AmountOut.String()).Msg("[Aggregator] split swap finished")
	return res, nil
}
