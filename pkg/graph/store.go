// Package graph defines the schema relationship graph store and the rules
// every backend applies on import.
package graph

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Store persists schema objects, their fields and containment edges.
//
// Imports are idempotent: re-importing an object or field with the same key
// returns the existing entity, refreshing its logical name when a non-empty
// one is supplied. A write that references a missing object fails with an
// *apperrors.GraphIntegrityError naming the missing endpoint. Read failures
// caused by the backend being unreachable wrap apperrors.ErrGraphUnavailable.
type Store interface {
	// ImportSchemaObject creates or refreshes a table, view or dataset.
	ImportSchemaObject(ctx context.Context, kind models.ObjectKind, physicalName, logicalName string) (*models.SchemaObject, error)

	// ImportField creates or refreshes a field on an existing table or view.
	// An owner ref without a kind resolves Table before View.
	ImportField(ctx context.Context, owner models.ObjectRef, physicalName, logicalName string) (*models.FieldDescriptor, error)

	// CreateContainmentEdge links parent -> child. Both endpoints must exist.
	// A child ref without a kind resolves Table before View.
	CreateContainmentEdge(ctx context.Context, parent, child models.ObjectRef) (*models.ContainmentEdge, error)

	// FindByName returns every object and field whose physical or logical
	// name equals name exactly. Objects come first, ordered by kind layer and
	// physical name, then fields ordered by owner and physical name.
	FindByName(ctx context.Context, name string) ([]models.GraphEntity, error)

	// TraverseOneHop returns the entities directly related to id. Returns
	// apperrors.ErrNotFound when id is neither an object nor a field.
	TraverseOneHop(ctx context.Context, id uuid.UUID, direction models.Direction) ([]models.GraphEntity, error)

	// Snapshot reads the whole graph.
	Snapshot(ctx context.Context) (*models.GraphSnapshot, error)

	Ping(ctx context.Context) error
	Close() error
}
