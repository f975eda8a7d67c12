package dex

import (
	"github.com/hxuan190/dex-aggregator/internal/domain"
)

// Tracker numbers the steps of one swap flow and forwards them to the caller.
type Tracker struct {
	emit  domain.ProgressFunc
	total int
	index int
}

func NewTracker(emit domain.ProgressFunc, totalSteps int) *Tracker {
	return &Tracker{emit: emit, total: totalSteps}
}

// Step reports entry into a non-terminal step.
func (t *Tracker) Step(step domain.SwapStep, msg string) {
	t.index++
	if t.index > t.total {
		t.total = t.index
	}
	t.emit.Emit(domain.SwapProgress{
		Step:       step,
		Message:    msg,
		StepIndex:  t.index,
		TotalSteps: t.total,
	})
}

// Skip drops one step from the expected total, e.g. an approval that was not needed.
func (t *Tracker) Skip() {
	if t.total > t.index+1 {
		t.total--
	}
}

func (t *Tracker) Complete(msg, txID string) {
	t.emit.Emit(domain.SwapProgress{
		Step:       domain.StepComplete,
		Message:    msg,
		StepIndex:  t.total,
		TotalSteps: t.total,
		Completed:  true,
		TxID:       txID,
	})
}

func (t *Tracker) Fail(err error) {
	t.FailTx(err, "")
}

// FailTx fails the flow and keeps a reference to funds that already moved.
func (t *Tracker) FailTx(err error, txID string) {
	p := domain.SwapProgress{
		Step:       domain.StepFailed,
		StepIndex:  t.index,
		TotalSteps: t.total,
		Failed:     true,
		TxID:       txID,
	}
	if err != nil {
		p.Message = err.Error()
		p.Error = err.Error()
	}
	t.emit.Emit(p)
}
