// Package fanout runs independent tasks under a concurrency ceiling.
package fanout

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work.
type Task[T any] func(ctx context.Context) (T, error)

// Result holds the outcome of the task in the same slot.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the task succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// PanicError is the error recorded for a task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fanout: task panicked: %v", e.Value)
}

// Run executes tasks with at most limit running at once and returns their
// results in input order. A failing task records its error in its own slot
// and never cancels its siblings. Tasks not yet started when ctx is done are
// skipped with ctx.Err(). A limit below 1 is treated as 1.
func Run[T any](ctx context.Context, limit int, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, task := range tasks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i] = call(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func call[T any](ctx context.Context, task Task[T]) (res Result[T]) {
	defer func() {
		if v := recover(); v != nil {
			res = Result[T]{Err: &PanicError{Value: v, Stack: debug.Stack()}}
		}
	}()
	v, err := task(ctx)
	return Result[T]{Value: v, Err: err}
}

// Values returns the values of successful results, in order.
func Values[T any](results []Result[T]) []T {
	out := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}
