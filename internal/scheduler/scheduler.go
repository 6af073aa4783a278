// Package scheduler runs batches of independent work units under a fixed concurrency ceiling.
package scheduler

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
)

// Task is a unit of work. Tasks in one batch must not depend on each other.
type Task func(ctx context.Context) error

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// RunAll executes tasks with at most ceiling running at once and returns each
// task's error at its position. A failing or panicking task never stops its siblings.
func RunAll(ctx context.Context, tasks []Task, ceiling int) []error {
	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return errs
	}
	if ceiling <= 0 {
		ceiling = 1
	}
	if ceiling > len(tasks) {
		ceiling = len(tasks)
	}

	pool := pond.NewPool(ceiling, pond.WithQueueSize(len(tasks)))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for i, task := range tasks {
		group.Submit(func() {
			errs[i] = runOne(ctx, task)
		})
	}
	_ = group.Wait()

	return errs
}

func runOne(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	if task == nil {
		return nil
	}
	return task(ctx)
}

// Failed counts non-nil errors.
func Failed(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
