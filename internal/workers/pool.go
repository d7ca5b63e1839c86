// Package workers provides a bounded worker pool for index-addressed parallel work.
package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Task processes the item at index i. Tasks write their result by index so the
// overall output does not depend on execution order.
type Task func(ctx context.Context, i int) error

// WorkerPool manages a pool of worker goroutines for parallel evaluation
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// Non-positive values default to GOMAXPROCS.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Workers returns the configured concurrency limit.
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

// Run executes task for every index in [0, n). The first error cancels the
// remaining work and is returned; a cancelled ctx stops scheduling new indices.
func (wp *WorkerPool) Run(ctx context.Context, n int, task Task) error {
	if n <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := wp.numWorkers
	if n < limit {
		limit = n // Don't spawn more workers than items
	}
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return task(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
