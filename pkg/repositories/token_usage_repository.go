package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/schema-graph/pkg/database"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// TokenUsageRepository persists the token usage log.
type TokenUsageRepository interface {
	SaveBatch(ctx context.Context, records []models.TokenUsageRecord) error
	TotalsBySource(ctx context.Context) (map[string]models.TokenTotals, error)
}

type tokenUsageRepository struct {
	db *database.DB
}

// NewTokenUsageRepository creates a new TokenUsageRepository.
func NewTokenUsageRepository(db *database.DB) TokenUsageRepository {
	return &tokenUsageRepository{db: db}
}

var _ TokenUsageRepository = (*tokenUsageRepository)(nil)

func (r *tokenUsageRepository) SaveBatch(ctx context.Context, records []models.TokenUsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO token_usage_records (source, model, purpose, input_tokens, output_tokens, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.Source, rec.Model, rec.Purpose, rec.InputTokens, rec.OutputTokens, rec.Timestamp)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save token usage records: %w", err)
	}
	return nil
}

func (r *tokenUsageRepository) TotalsBySource(ctx context.Context) (map[string]models.TokenTotals, error) {
	rows, err := r.db.Query(ctx, `
		SELECT source,
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COUNT(*)
		FROM token_usage_records
		GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to query token usage totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]models.TokenTotals)
	for rows.Next() {
		var (
			source string
			t      models.TokenTotals
		)
		if err := rows.Scan(&source, &t.InputTokens, &t.OutputTokens, &t.Calls); err != nil {
			return nil, fmt.Errorf("failed to scan token usage totals: %w", err)
		}
		t.TotalTokens = t.InputTokens + t.OutputTokens
		totals[source] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate token usage totals: %w", err)
	}
	return totals, nil
}
