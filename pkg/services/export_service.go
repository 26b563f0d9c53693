package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/config"
	"github.com/ekaya-inc/schema-graph/pkg/export"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// ExportService renders the relationship graph to files.
type ExportService interface {
	// ExportTabular writes the spreadsheet of all containment paths. It
	// fails with apperrors.ErrEmptyGraph when the graph has no objects.
	ExportTabular(ctx context.Context) (*models.ExportArtifact, error)

	// ExportDiagram writes the slide deck and Mermaid definition from the
	// spreadsheet. The spreadsheet must exist.
	ExportDiagram(ctx context.Context) (*models.ExportArtifact, error)

	// ArtifactPath returns the path of a finished artifact by file name.
	ArtifactPath(name string) (string, error)
}

type exportService struct {
	store   graph.Store
	config  config.ExportConfig
	sem     chan struct{}
	timeout time.Duration
	logger  *zap.Logger
}

// NewExportService creates an ExportService. At most cfg.MaxConcurrent
// exports run at once; more are rejected with apperrors.ErrExportBusy.
func NewExportService(store graph.Store, cfg config.ExportConfig, logger *zap.Logger) ExportService {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &exportService{
		store:   store,
		config:  cfg,
		sem:     make(chan struct{}, limit),
		timeout: timeout,
		logger:  logger.Named("export"),
	}
}

var _ ExportService = (*exportService)(nil)

type exportResult struct {
	artifact *models.ExportArtifact
	err      error
}

// run executes fn on its own goroutine with a fresh timeout. A caller that
// goes away stops waiting but does not cancel the export.
func (s *exportService) run(ctx context.Context, kind models.ExportKind, fn func(context.Context) (*models.ExportArtifact, error)) (*models.ExportArtifact, error) {
	select {
	case s.sem <- struct{}{}:
	default:
		return nil, apperrors.ErrExportBusy
	}

	done := make(chan exportResult, 1)
	go func() {
		defer func() { <-s.sem }()

		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		start := time.Now()
		artifact, err := fn(workCtx)
		if err != nil {
			s.logger.Error("Export failed", zap.String("kind", string(kind)), zap.Error(err))
		} else {
			s.logger.Info("Export finished",
				zap.String("kind", string(kind)),
				zap.String("file", artifact.FileName),
				zap.Int("rows", artifact.Rows),
				zap.Duration("elapsed", time.Since(start)))
		}
		done <- exportResult{artifact: artifact, err: err}
	}()

	select {
	case r := <-done:
		return r.artifact, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *exportService) path(name string) string {
	return filepath.Join(s.config.OutputDir, name)
}

func (s *exportService) ExportTabular(ctx context.Context) (*models.ExportArtifact, error) {
	return s.run(ctx, models.ExportTabular, s.exportTabular)
}

func (s *exportService) exportTabular(ctx context.Context) (*models.ExportArtifact, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema graph: %w", err)
	}
	if snap.IsEmpty() {
		return nil, apperrors.ErrEmptyGraph
	}

	rows := export.TabularRows(snap)
	path := s.path(s.config.TabularFileName)
	data, err := export.WriteTabularXLSX(path, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to write tabular export: %w", err)
	}

	return artifact(models.ExportTabular, path, s.config.TabularFileName, data, len(rows)), nil
}

func (s *exportService) ExportDiagram(ctx context.Context) (*models.ExportArtifact, error) {
	return s.run(ctx, models.ExportDiagram, s.exportDiagram)
}

func (s *exportService) exportDiagram(ctx context.Context) (*models.ExportArtifact, error) {
	tabularPath := s.path(s.config.TabularFileName)
	tabular, err := os.ReadFile(tabularPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &apperrors.ExportPreconditionError{
			Code:     apperrors.PreconditionTabularMissing,
			Artifact: s.config.TabularFileName,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tabular export: %w", err)
	}

	rows, err := export.ReadTabularXLSXFile(tabular)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tabular export: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hierarchy := export.BuildHierarchy(rows)

	path := s.path(s.config.DiagramFileName)
	data, err := export.WritePPTX(path, rows, hierarchy)
	if err != nil {
		return nil, fmt.Errorf("failed to write diagram export: %w", err)
	}

	extra := []string{}
	if s.config.MermaidFileName != "" {
		mermaid := export.RenderMermaid(hierarchy)
		if err := export.WriteFileAtomic(s.path(s.config.MermaidFileName), []byte(mermaid)); err != nil {
			return nil, fmt.Errorf("failed to write mermaid definition: %w", err)
		}
		extra = append(extra, s.config.MermaidFileName)
	}

	a := artifact(models.ExportDiagram, path, s.config.DiagramFileName, data, len(rows))
	a.Extra = extra
	return a, nil
}

func (s *exportService) ArtifactPath(name string) (string, error) {
	switch name {
	case s.config.TabularFileName, s.config.DiagramFileName, s.config.MermaidFileName:
	default:
		return "", fmt.Errorf("%w: artifact %q", apperrors.ErrNotFound, name)
	}
	if name == "" {
		return "", apperrors.ErrNotFound
	}

	path := s.path(name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: artifact %q has not been exported", apperrors.ErrNotFound, name)
		}
		return "", err
	}
	return path, nil
}

func artifact(kind models.ExportKind, path, name string, data []byte, rows int) *models.ExportArtifact {
	sum := sha256.Sum256(data)
	return &models.ExportArtifact{
		Kind:      kind,
		Path:      path,
		FileName:  name,
		Rows:      rows,
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(data)),
	}
}
