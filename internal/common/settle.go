package common

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Settled is the outcome of one task run by SettleAll.
type Settled[T any] struct {
	Index int
	Value T
	Err   error
}

func (s Settled[T]) OK() bool {
	return s.Err == nil
}

// SettleAll runs every task concurrently and waits for all of them. A failing
// or panicking task never cancels the others; its error is recorded in its
// slot. Results keep the order of tasks. limit <= 0 means unbounded.
func SettleAll[T any](ctx context.Context, limit int, tasks []func(context.Context) (T, error)) []Settled[T] {
	results := make([]Settled[T], len(tasks))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() error {
			results[i] = runSettled(ctx, i, task)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runSettled[T any](ctx context.Context, idx int, task func(context.Context) (T, error)) (res Settled[T]) {
	res.Index = idx
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("task %d panicked: %v", idx, r)
		}
	}()
	res.Value, res.Err = task(ctx)
	return res
}

// Partition splits settled results into successful values and errors,
// preserving order within each side.
func Partition[T any](results []Settled[T]) ([]T, []error) {
	values := make([]T, 0, len(results))
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		values = append(values, r.Value)
	}
	return values, errs
}
