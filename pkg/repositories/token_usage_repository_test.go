//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/testhelpers"
)

func TestTokenUsageRepository_SaveBatchAndTotals(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	engineDB.Truncate(t, "token_usage_records")
	repo := NewTokenUsageRepository(engineDB.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.SaveBatch(ctx, nil))

	err := repo.SaveBatch(ctx, []models.TokenUsageRecord{
		{Source: "openai", Model: "gpt-4o-mini", Purpose: "entity_extraction", InputTokens: 100, OutputTokens: 10, Timestamp: now},
		{Source: "openai", Model: "gpt-4o-mini", Purpose: "answer_composition", InputTokens: 400, OutputTokens: 90, Timestamp: now},
		{Source: "azure", Model: "gpt-4o", Purpose: "answer_composition", InputTokens: 0, OutputTokens: 0, Timestamp: now},
	})
	require.NoError(t, err)

	totals, err := repo.TotalsBySource(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)

	assert.Equal(t, models.TokenTotals{InputTokens: 500, OutputTokens: 100, TotalTokens: 600, Calls: 2}, totals["openai"])
	assert.Equal(t, models.TokenTotals{Calls: 1}, totals["azure"])
}
