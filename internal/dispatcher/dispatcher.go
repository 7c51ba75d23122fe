// Package dispatcher runs batches of indexed tasks under one of two execution
// strategies and collects their results in input order.
//
// BatchJoin launches every task at once and joins them, failing fast on the
// first error. Pool fans tasks out to a fixed number of goroutines created for
// the batch and torn down when it completes.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task processes the i-th input of a batch.
type Task func(ctx context.Context, i int) error

// Strategy executes n indexed tasks and returns once all have finished.
type Strategy interface {
	Run(ctx context.Context, n int, task Task) error
}

// Collect runs fn over inputs with the given strategy and returns the outputs
// in input order, independent of completion order.
func Collect[In, Out any](
	ctx context.Context,
	strategy Strategy,
	inputs []In,
	fn func(ctx context.Context, in In) (Out, error),
) ([]Out, error) {
	out := make([]Out, len(inputs))
	err := strategy.Run(ctx, len(inputs), func(ctx context.Context, i int) error {
		v, err := fn(ctx, inputs[i])
		if err != nil {
			return err
		}
		out[i] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BatchJoin starts all tasks concurrently and waits for every one of them.
// The first error cancels the shared context and is returned.
type BatchJoin struct{}

// Run implements Strategy.
func (BatchJoin) Run(ctx context.Context, n int, task Task) error {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return task(gCtx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch join: %w", err)
	}
	return nil
}

// Pool runs tasks on at most Size goroutines. A fresh set of goroutines is
// started for every Run call.
type Pool struct {
	Size int
}

// NewPool returns a Pool capped at size workers.
func NewPool(size int) *Pool {
	return &Pool{Size: size}
}

// Workers is the number of goroutines Run starts for n tasks.
func (p *Pool) Workers(n int) int {
	workers := p.Size
	if n < workers {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// Run implements Strategy. Every task is executed even if an earlier one
// failed; the first error is returned.
func (p *Pool) Run(ctx context.Context, n int, task Task) error {
	if n == 0 {
		return nil
	}
	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	workers := p.Workers(n)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := task(ctx, i); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return fmt.Errorf("worker pool: %w", firstErr)
	}
	return nil
}
