package dex

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hxuan190/dex-aggregator/internal/domain"
)

func TestTracker(t *testing.T) {
	var events []domain.SwapProgress
	tr := NewTracker(func(p domain.SwapProgress) { events = append(events, p) }, 3)

	tr.Step(domain.StepCheckingAllowance, "checking")
	tr.Skip()
	tr.Step(domain.StepSwapping, "swapping")
	tr.Complete("done", "42")

	if assert.Len(t, events, 3) {
		assert.Equal(t, 1, events[0].StepIndex)
		assert.Equal(t, 2, events[1].TotalSteps)
		assert.True(t, events[2].Completed)
		assert.Equal(t, "42", events[2].TxID)
	}

	events = nil
	tr = NewTracker(func(p domain.SwapProgress) { events = append(events, p) }, 2)
	tr.Step(domain.StepTransferring, "")
	tr.Fail(errors.New("boom"))
	assert.True(t, events[1].Failed)
	assert.Equal(t, "boom", events[1].Error)
}

func TestTrackerNilCallback(t *testing.T) {
	tr := NewTracker(nil, 1)
	tr.Step(domain.StepSwapping, "")
	tr.Complete("", "")
}

func TestFailedAfterTransfer(t *testing.T) {
	rec := &domain.PendingTransferRecord{Key: "icpswap:a:b:7", BlockIndex: big.NewInt(7)}
	swapErr := errors.New("canister trapped")

	var events []domain.SwapProgress
	tr := NewTracker(func(p domain.SwapProgress) { events = append(events, p) }, 2)
	res := FailedAfterTransfer(tr, rec, swapErr, nil)
	assert.False(t, res.Success)
	assert.Zero(t, res.AmountOut.Sign())
	assert.Equal(t, "7", res.TxID)
	assert.Equal(t, rec.Key, res.PendingKey)
	assert.Contains(t, res.Error, ErrSwapFailed.Error())
	assert.NotContains(t, res.Error, ErrTransferNotRecorded.Error())
	if assert.Len(t, events, 1) {
		assert.True(t, events[0].Failed)
		assert.Equal(t, "7", events[0].TxID)
	}

	res = FailedAfterTransfer(NewTracker(nil, 2), rec, swapErr, errors.New("disk full"))
	assert.Equal(t, "7", res.TxID)
	assert.Empty(t, res.PendingKey)
	assert.Contains(t, res.Error, ErrTransferNotRecorded.Error())
	assert.Contains(t, res.Error, "block 7")
	assert.Contains(t, res.Error, "disk full")
}
