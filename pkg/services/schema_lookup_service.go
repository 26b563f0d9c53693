package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// DefaultLookupLimit bounds the matches a lookup expands.
const DefaultLookupLimit = 20

// SchemaLookupService finds schema objects and fields by name.
type SchemaLookupService interface {
	// Describe returns every entity whose physical or logical name equals
	// name, each with its one-hop neighbourhood.
	Describe(ctx context.Context, name string) ([]models.EntityDescription, error)
}

type schemaLookupService struct {
	store  graph.Store
	limit  int
	logger *zap.Logger
}

// NewSchemaLookupService creates a SchemaLookupService. limit <= 0 uses
// DefaultLookupLimit.
func NewSchemaLookupService(store graph.Store, limit int, logger *zap.Logger) SchemaLookupService {
	if limit <= 0 {
		limit = DefaultLookupLimit
	}
	return &schemaLookupService{store: store, limit: limit, logger: logger.Named("schema-lookup")}
}

var _ SchemaLookupService = (*schemaLookupService)(nil)

func (s *schemaLookupService) Describe(ctx context.Context, name string) ([]models.EntityDescription, error) {
	// Names match exactly as imported; only a blank name is rejected.
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrInvalidRequest)
	}

	found, err := s.store.FindByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %q: %w", name, err)
	}
	if len(found) > s.limit {
		found = found[:s.limit]
	}

	out := make([]models.EntityDescription, 0, len(found))
	for _, e := range found {
		related, err := s.store.TraverseOneHop(ctx, e.ID(), models.DirectionBoth)
		if err != nil {
			s.logger.Warn("One-hop traversal failed", zap.String("name", e.Name()), zap.Error(err))
			related = nil
		}
		out = append(out, describeEntity(e, related))
	}
	return out, nil
}

func describeEntity(e models.GraphEntity, related []models.GraphEntity) models.EntityDescription {
	d := models.EntityDescription{
		Kind:         e.EntityKind(),
		PhysicalName: e.Name(),
		LogicalName:  e.LogicalName(),
		Related:      make([]models.RelatedEntity, 0, len(related)),
	}
	if e.Field != nil {
		d.Owner = string(e.Field.OwnerKind) + ":" + e.Field.OwningPhysicalName
	}
	for _, r := range related {
		d.Related = append(d.Related, models.RelatedEntity{
			Relation:     r.Relation,
			Kind:         r.EntityKind(),
			PhysicalName: r.Name(),
			LogicalName:  r.LogicalName(),
		})
	}
	return d
}
