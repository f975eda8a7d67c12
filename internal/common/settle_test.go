package common

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAllNeverFailsFast(t *testing.T) {
	var finished atomic.Int32
	boom := errors.New("boom")

	tasks := []func(context.Context) (int, error){
		func(context.Context) (int, error) { return 0, boom },
		func(context.Context) (int, error) {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
			return 2, nil
		},
		func(context.Context) (int, error) { panic("leg exploded") },
		func(context.Context) (int, error) {
			finished.Add(1)
			return 4, nil
		},
	}

	results := SettleAll(context.Background(), 0, tasks)
	require.Len(t, results, 4)
	assert.Equal(t, int32(2), finished.Load())

	assert.ErrorIs(t, results[0].Err, boom)
	assert.True(t, results[1].OK())
	assert.Equal(t, 2, results[1].Value)
	assert.ErrorContains(t, results[2].Err, "panicked")
	assert.Equal(t, 3, results[3].Index)

	values, errs := Partition(results)
	assert.Equal(t, []int{2, 4}, values)
	assert.Len(t, errs, 2)
}

func TestSettleAllRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	tasks := make([]func(context.Context) (struct{}, error), 8)
	for i := range tasks {
		tasks[i] = func(context.Context) (struct{}, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return struct{}{}, nil
		}
	}

	SettleAll(context.Background(), 2, tasks)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
