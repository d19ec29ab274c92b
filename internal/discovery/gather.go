package discovery

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one fan-out call.
type Result[T any] struct {
	Name     string
	Value    T
	Err      error
	Duration time.Duration
}

// Task is one named call of a fan-out.
type Task[T any] struct {
	Name string
	Call func(ctx context.Context) (T, error)
}

// Gather runs every task concurrently, each under its own timeout, and
// returns one Result per task in task order. A failing or panicking task
// never cancels the others.
func Gather[T any](ctx context.Context, timeout time.Duration, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = run(ctx, timeout, task)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func run[T any](ctx context.Context, timeout time.Duration, task Task[T]) (res Result[T]) {
	res.Name = task.Name
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%s: panic: %v", task.Name, r)
		}
		res.Duration = time.Since(start)
	}()

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res.Value, res.Err = task.Call(callCtx)
	return res
}
