package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent work items (default: 4)
}

// DefaultWorkerPoolConfig returns the defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{MaxConcurrent: 4}
}

// WorkerPool runs independent work items with bounded parallelism. The chat
// pipeline uses it to resolve extracted candidates against the graph store.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultWorkerPoolConfig().MaxConcurrent
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// MaxConcurrent returns the configured parallelism.
func (p *WorkerPool) MaxConcurrent() int {
	return p.config.MaxConcurrent
}

// WorkItem is a unit of work.
type WorkItem[T any] struct {
	ID      string // For logging
	Execute func(ctx context.Context) (T, error)
}

// WorkResult is the outcome of one WorkItem.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes every item and returns the results in submission order,
// so result i always belongs to items[i]. A failing item does not stop the
// others. Items not yet started when ctx is cancelled report ctx.Err().
func Process[T any](ctx context.Context, pool *WorkerPool, items []WorkItem[T]) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item WorkItem[T]) {
			defer wg.Done()
			results[i].ID = item.ID

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}

			results[i].Result, results[i].Err = item.Execute(ctx)
			if results[i].Err != nil {
				pool.logger.Debug("Work item failed", zap.String("id", item.ID), zap.Error(results[i].Err))
			}
		}(i, item)
	}
	wg.Wait()

	return results
}
