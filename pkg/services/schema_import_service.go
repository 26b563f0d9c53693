package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/logging"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// SchemaImportService loads schema descriptors into the graph.
type SchemaImportService interface {
	// Import writes every object and its fields, then links containment
	// edges once all items are in. Per-item and linking failures are
	// reported in the result; only an unreachable store returns an error.
	Import(ctx context.Context, descriptors []models.SchemaDescriptor) (*models.ImportReport, error)

	// ImportFromSource discovers descriptors from a live database and
	// imports them.
	ImportFromSource(ctx context.Context, sourceType string, config map[string]any) (*models.ImportReport, error)
}

type schemaImportService struct {
	store  graph.Store
	logger *zap.Logger

	// Imports are single-writer.
	mu sync.Mutex
}

// NewSchemaImportService creates a SchemaImportService.
func NewSchemaImportService(store graph.Store, logger *zap.Logger) SchemaImportService {
	return &schemaImportService{
		store:  store,
		logger: logger.Named("schema-import"),
	}
}

var _ SchemaImportService = (*schemaImportService)(nil)

func (s *schemaImportService) Import(ctx context.Context, descriptors []models.SchemaDescriptor) (*models.ImportReport, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: no schema descriptors given", apperrors.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report := &models.ImportReport{Items: make([]models.ItemImportResult, 0, len(descriptors))}
	kinds := make([]models.ObjectKind, len(descriptors))

	for i, d := range descriptors {
		item, kind, err := s.importItem(ctx, d)
		if err != nil {
			return nil, err
		}
		kinds[i] = kind
		report.Items = append(report.Items, item)
		if item.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	linking, err := s.link(ctx, descriptors, kinds)
	if err != nil {
		return nil, err
	}
	report.Linking = linking

	s.logger.Info("Schema import finished",
		zap.Int("items", len(descriptors)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.String("linking", linking.Status),
		zap.Int("edges_created", linking.EdgesCreated))

	return report, nil
}

// importItem writes one object and its fields. The returned error is set
// only when the store is unreachable and the import must stop.
func (s *schemaImportService) importItem(ctx context.Context, d models.SchemaDescriptor) (models.ItemImportResult, models.ObjectKind, error) {
	item := models.ItemImportResult{Kind: d.Kind, PhysicalName: d.PhysicalName}

	kind, err := models.ParseObjectKind(string(d.Kind))
	if err != nil {
		item.Error = err.Error()
		return item, "", nil
	}
	item.Kind = kind

	if _, err := s.store.ImportSchemaObject(ctx, kind, d.PhysicalName, d.LogicalName); err != nil {
		if errors.Is(err, apperrors.ErrGraphUnavailable) {
			return item, kind, fmt.Errorf("failed to import %s: %w", d.PhysicalName, err)
		}
		s.logger.Warn("Schema object rejected",
			zap.String("kind", string(kind)),
			zap.String("name", d.PhysicalName),
			zap.Error(err))
		item.Error = err.Error()
		return item, kind, nil
	}

	item.Success = true
	owner := models.ObjectRef{Kind: kind, PhysicalName: d.PhysicalName}
	for _, f := range d.Fields {
		fr := models.FieldImportResult{PhysicalName: f.PhysicalName, Success: true}
		if _, err := s.store.ImportField(ctx, owner, f.PhysicalName, f.LogicalName); err != nil {
			if errors.Is(err, apperrors.ErrGraphUnavailable) {
				return item, kind, fmt.Errorf("failed to import field %s.%s: %w", d.PhysicalName, f.PhysicalName, err)
			}
			fr.Success = false
			fr.Error = err.Error()
			item.Success = false
			item.Error = "one or more fields were rejected"
		}
		item.Fields = append(item.Fields, fr)
	}
	return item, kind, nil
}

// link creates the containment edges of every descriptor.
func (s *schemaImportService) link(ctx context.Context, descriptors []models.SchemaDescriptor, kinds []models.ObjectKind) (models.LinkingResult, error) {
	result := models.LinkingResult{}
	requested := 0

	for i, d := range descriptors {
		if len(d.Contains) == 0 {
			continue
		}
		parent := models.ObjectRef{Kind: kinds[i], PhysicalName: d.PhysicalName}
		for _, child := range d.Contains {
			requested++
			_, err := s.store.CreateContainmentEdge(ctx, parent, models.ObjectRef{PhysicalName: child})
			if err == nil {
				result.EdgesCreated++
				continue
			}
			if errors.Is(err, apperrors.ErrGraphUnavailable) {
				return result, fmt.Errorf("failed to link %s -> %s: %w", parent, child, err)
			}

			failure := models.LinkFailure{Parent: parent.String(), Child: child, Error: err.Error()}
			var gie *apperrors.GraphIntegrityError
			if errors.As(err, &gie) {
				failure.MissingName = gie.MissingName
			}
			result.Failures = append(result.Failures, failure)
		}
	}

	switch {
	case requested == 0:
		result.Status = models.LinkingStatusSkipped
	case len(result.Failures) == 0:
		result.Status = models.LinkingStatusOK
	case result.EdgesCreated == 0:
		result.Status = models.LinkingStatusFailed
	default:
		result.Status = models.LinkingStatusPartial
	}
	return result, nil
}

func (s *schemaImportService) ImportFromSource(ctx context.Context, sourceType string, config map[string]any) (*models.ImportReport, error) {
	s.logger.Info("Introspecting schema source",
		zap.String("type", sourceType),
		zap.Any("config", logging.SanitizeSourceConfig(config)))

	src, err := schemasource.Open(ctx, sourceType, config, s.logger)
	if err != nil {
		s.logger.Warn("Failed to open schema source",
			zap.String("type", sourceType),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to open schema source: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warn("Failed to close schema source", zap.String("type", sourceType), zap.Error(err))
		}
	}()

	descriptors, err := src.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover schema: %w", err)
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("%w: source has no tables or views", apperrors.ErrInvalidRequest)
	}
	return s.Import(ctx, descriptors)
}

// DecodeDescriptors parses a YAML or JSON descriptor document: either an
// object with an "objects" list or a bare list.
func DecodeDescriptors(data []byte) ([]models.SchemaDescriptor, error) {
	var file models.SchemaDescriptorFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Objects) > 0 {
		return file.Objects, nil
	}

	var list []models.SchemaDescriptor
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: failed to parse descriptors: %v", apperrors.ErrInvalidRequest, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no schema descriptors found", apperrors.ErrInvalidRequest)
	}
	return list, nil
}

// LoadDescriptorsFile reads descriptors from a YAML or JSON file.
func LoadDescriptorsFile(path string) ([]models.SchemaDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file: %w", err)
	}
	return DecodeDescriptors(data)
}
