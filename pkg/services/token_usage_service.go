package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/llm"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/repositories"
)

// TokenUsageService reports model token consumption.
type TokenUsageService interface {
	// Report returns the running totals of this process and, when the usage
	// log is persisted, the all-time totals per provider.
	Report(ctx context.Context) (*models.TokenUsageReport, error)
}

type tokenUsageService struct {
	ledger *llm.TokenLedger
	repo   repositories.TokenUsageRepository
	logger *zap.Logger
}

// NewTokenUsageService creates a TokenUsageService. repo may be nil.
func NewTokenUsageService(ledger *llm.TokenLedger, repo repositories.TokenUsageRepository, logger *zap.Logger) TokenUsageService {
	return &tokenUsageService{
		ledger: ledger,
		repo:   repo,
		logger: logger.Named("token-usage"),
	}
}

var _ TokenUsageService = (*tokenUsageService)(nil)

func (s *tokenUsageService) Report(ctx context.Context) (*models.TokenUsageReport, error) {
	report := s.ledger.Report()
	if s.repo == nil {
		return report, nil
	}

	persisted, err := s.repo.TotalsBySource(ctx)
	if err != nil {
		s.logger.Warn("Failed to read persisted token usage", zap.Error(err))
		return report, nil
	}
	report.Persisted = persisted
	return report, nil
}
