package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// WorkerPool runs independent jobs on a fixed number of goroutines.
// Planners share nothing, so each job gets a planner of its own.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool
// workerCount: number of worker goroutines (0 = use NumCPU)
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// Execute calls op for every index in [0, n) using the pool. Callers
// write results into their own slice by index, which keeps them in
// input order.
//
// Jobs not yet started when ctx is cancelled are skipped. Execute
// returns the error of the lowest failing index, or ctx's error if
// jobs were skipped.
func (p *WorkerPool) Execute(ctx context.Context, n int, op func(ctx context.Context, idx int) error) error {
	if n == 0 {
		return nil
	}

	errs := make([]error, n)
	jobs := make(chan int, n)

	workers := p.workerCount
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					errs[idx] = err
					continue
				}
				errs[idx] = op(ctx, idx)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("parallel execution failed at index %d: %w", i, err)
		}
	}
	return nil
}

// WorkerCount returns the number of worker goroutines
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}
