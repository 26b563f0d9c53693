package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/repositories"
)

const usageBatchSize = 32

// AsyncUsageRecorder persists ledger records in the background so provider
// calls never wait on the database. When the queue is full, records are
// dropped with a warning; the in-memory ledger still has them.
type AsyncUsageRecorder struct {
	repo   repositories.TokenUsageRepository
	logger *zap.Logger
	queue  chan models.TokenUsageRecord
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewAsyncUsageRecorder creates a recorder and starts its writer goroutine.
// queueSize controls the buffer size.
func NewAsyncUsageRecorder(repo repositories.TokenUsageRepository, logger *zap.Logger, queueSize int) *AsyncUsageRecorder {
	if queueSize <= 0 {
		queueSize = 100
	}

	r := &AsyncUsageRecorder{
		repo:   repo,
		logger: logger.Named("usage-recorder"),
		queue:  make(chan models.TokenUsageRecord, queueSize),
		done:   make(chan struct{}),
	}

	go r.processQueue()

	return r
}

// Record queues a usage record. Non-blocking. Records arriving after Close
// are dropped.
func (r *AsyncUsageRecorder) Record(rec models.TokenUsageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("Token usage recorder closed, dropping record",
			zap.String("source", rec.Source),
			zap.String("model", rec.Model))
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.logger.Warn("Token usage queue full, dropping record",
			zap.String("source", rec.Source),
			zap.String("model", rec.Model))
	}
}

// Close stops the recorder and waits for queued records to be saved. It is
// safe to call more than once.
func (r *AsyncUsageRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	<-r.done
}

// processQueue drains the queue in small batches.
func (r *AsyncUsageRecorder) processQueue() {
	defer close(r.done)

	batch := make([]models.TokenUsageRecord, 0, usageBatchSize)
	for rec := range r.queue {
		batch = append(batch, rec)
		// Take whatever else is already waiting, up to the batch size.
	drain:
		for len(batch) < usageBatchSize {
			select {
			case more, ok := <-r.queue:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}
		r.saveBatch(batch)
		batch = batch[:0]
	}
}

func (r *AsyncUsageRecorder) saveBatch(batch []models.TokenUsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.repo.SaveBatch(ctx, batch); err != nil {
		r.logger.Error("Failed to save token usage records",
			zap.Int("count", len(batch)),
			zap.Error(err))
		return
	}

	r.logger.Debug("Saved token usage records", zap.Int("count", len(batch)))
}

var _ UsageRecorder = (*AsyncUsageRecorder)(nil)
