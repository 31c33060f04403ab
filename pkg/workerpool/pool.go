// Package workerpool provides a process-wide bounded pool for blocking
// calls such as LLM requests. One Pool is built at startup and shared by all
// requests, so a burst of work queues on the semaphore instead of spawning
// unbounded goroutines.
package workerpool

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Pool struct {
	name   string
	size   int
	sem    *semaphore.Weighted
	logger *zap.Logger
}

func New(name string, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	logger.Info("Worker pool created", zap.String("pool", name), zap.Int("size", size))
	return &Pool{
		name:   name,
		size:   size,
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger,
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Run calls fn for every index in [0, n) with at most Size calls in flight
// across all callers of the pool. The first error cancels the context handed
// to the remaining calls and is returned once every started call finished.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	var acquireErr error
	for i := 0; i < n; i++ {
		if err := p.sem.Acquire(gctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		p.logger.Debug("Worker pool batch failed", zap.String("pool", p.name), zap.Int("tasks", n), zap.Error(err))
		return err
	}
	return acquireErr
}
