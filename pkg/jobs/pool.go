package jobs

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// Pool fans indexed tasks out to a fixed number of goroutines.
type Pool struct {
	workers int
}

// NewPool builds a pool; fewer than one worker means one. With one worker
// tasks run in index order.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run calls fn for every index in [0, n) and returns the error of each call
// at its index. A failing call does not stop the others. Indices not started
// before ctx ends get ctx.Err().
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	workers := pool.New().WithMaxGoroutines(p.workers)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		i := i
		workers.Go(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = fn(ctx, i)
		})
	}
	workers.Wait()
	return errs
}
