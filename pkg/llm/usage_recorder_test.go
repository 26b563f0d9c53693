package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

type mockUsageRepository struct {
	mu      sync.Mutex
	saved   []models.TokenUsageRecord
	batches int
	err     error
	block   chan struct{}
}

func (m *mockUsageRepository) SaveBatch(ctx context.Context, records []models.TokenUsageRecord) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, records...)
	return nil
}

func (m *mockUsageRepository) TotalsBySource(ctx context.Context) (map[string]models.TokenTotals, error) {
	return nil, nil
}

func TestAsyncUsageRecorder_PersistsOnClose(t *testing.T) {
	repo := &mockUsageRepository{}
	recorder := NewAsyncUsageRecorder(repo, zap.NewNop(), 10)

	for i := 0; i < 5; i++ {
		recorder.Record(models.TokenUsageRecord{Source: "openai", Model: "m", InputTokens: i, Timestamp: time.Now()})
	}
	recorder.Close()

	assert.Len(t, repo.saved, 5)
	for i, rec := range repo.saved {
		assert.Equal(t, i, rec.InputTokens, "records keep queue order")
	}
}

func TestAsyncUsageRecorder_DropsWhenFull(t *testing.T) {
	repo := &mockUsageRepository{block: make(chan struct{})}
	recorder := NewAsyncUsageRecorder(repo, zap.NewNop(), 1)

	// The writer takes the first record and blocks in SaveBatch; the queue
	// then holds at most one more.
	for i := 0; i < 10; i++ {
		recorder.Record(models.TokenUsageRecord{Source: "openai"})
	}
	close(repo.block)
	recorder.Close()

	assert.Less(t, len(repo.saved), 10)
	assert.GreaterOrEqual(t, len(repo.saved), 1)
}

func TestAsyncUsageRecorder_SaveErrorIsLogged(t *testing.T) {
	repo := &mockUsageRepository{err: errors.New("db down")}
	recorder := NewAsyncUsageRecorder(repo, zap.NewNop(), 4)

	recorder.Record(models.TokenUsageRecord{Source: "openai"})
	recorder.Close()

	assert.Empty(t, repo.saved)
	assert.GreaterOrEqual(t, repo.batches, 1)
}

func TestAsyncUsageRecorder_RecordAfterClose(t *testing.T) {
	repo := &mockUsageRepository{}
	recorder := NewAsyncUsageRecorder(repo, zap.NewNop(), 4)

	recorder.Record(models.TokenUsageRecord{Source: "openai"})
	recorder.Close()

	assert.NotPanics(t, func() {
		recorder.Record(models.TokenUsageRecord{Source: "openai"})
	})
	assert.NotPanics(t, recorder.Close, "second close is a no-op")
	assert.Len(t, repo.saved, 1)
}

func TestAsyncUsageRecorder_ConcurrentRecordAndClose(t *testing.T) {
	repo := &mockUsageRepository{}
	recorder := NewAsyncUsageRecorder(repo, zap.NewNop(), 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				recorder.Record(models.TokenUsageRecord{Source: "openai"})
			}
		}()
	}
	recorder.Close()
	wg.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.LessOrEqual(t, len(repo.saved), 400)
}

func TestLedgerWithRecorder(t *testing.T) {
	repo := &mockUsageRepository{}
	recorder := NewAsyncUsageRecorder(repo, zap.NewNop(), 10)
	ledger := NewTokenLedger(recorder)

	ledger.Record("azure", "gpt-4o", PurposeAnswerComposition, 8, 9)
	recorder.Close()

	if assert.Len(t, repo.saved, 1) {
		assert.Equal(t, "azure", repo.saved[0].Source)
		assert.Equal(t, PurposeAnswerComposition, repo.saved[0].Purpose)
	}
}
