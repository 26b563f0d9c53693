// Package postgres is the graph.Store backed by the schema_objects,
// schema_fields and schema_containment tables.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/database"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

const defaultQueryTimeout = 10 * time.Second

type store struct {
	db           *database.DB
	queryTimeout time.Duration
	logger       *zap.Logger
}

// NewStore creates a graph.Store over an existing pool. The pool is owned
// by the caller; Close does not close it.
func NewStore(db *database.DB, queryTimeout time.Duration, logger *zap.Logger) graph.Store {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &store{
		db:           db,
		queryTimeout: queryTimeout,
		logger:       logger.Named("graph-postgres"),
	}
}

var _ graph.Store = (*store)(nil)

// unavailable marks backend failures so exports can tell them apart from an
// empty graph.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, apperrors.ErrGraphUnavailable, err)
}

const objectColumns = `id, kind, physical_name, COALESCE(logical_name, ''), created_at, updated_at`

func scanObject(row pgx.Row) (*models.SchemaObject, error) {
	var o models.SchemaObject
	var kind string
	if err := row.Scan(&o.ID, &kind, &o.PhysicalName, &o.LogicalName, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Kind = models.ObjectKind(kind)
	return &o, nil
}

const fieldColumns = `f.id, f.owner_id, o.kind, o.physical_name, f.physical_name, COALESCE(f.logical_name, ''), f.created_at, f.updated_at`

func scanField(row pgx.Row) (*models.FieldDescriptor, error) {
	var f models.FieldDescriptor
	var kind string
	if err := row.Scan(&f.ID, &f.OwnerID, &kind, &f.OwningPhysicalName, &f.PhysicalName, &f.LogicalName, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.OwnerKind = models.ObjectKind(kind)
	return &f, nil
}

func collectObjects(rows pgx.Rows) ([]*models.SchemaObject, error) {
	defer rows.Close()
	var out []*models.SchemaObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func collectFields(rows pgx.Rows) ([]*models.FieldDescriptor, error) {
	defer rows.Close()
	var out []*models.FieldDescriptor
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *store) ImportSchemaObject(ctx context.Context, kind models.ObjectKind, physicalName, logicalName string) (*models.SchemaObject, error) {
	if err := graph.CheckImportObject(kind, physicalName); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.db.QueryRow(ctx, `
		INSERT INTO schema_objects (id, kind, physical_name, logical_name)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (kind, physical_name) DO UPDATE
		SET logical_name = COALESCE(EXCLUDED.logical_name, schema_objects.logical_name),
		    updated_at = CASE
		        WHEN EXCLUDED.logical_name IS DISTINCT FROM schema_objects.logical_name
		             AND EXCLUDED.logical_name IS NOT NULL THEN now()
		        ELSE schema_objects.updated_at END
		RETURNING `+objectColumns,
		uuid.New(), string(kind), physicalName, logicalName)

	obj, err := scanObject(row)
	if err != nil {
		return nil, unavailable("import schema object", err)
	}
	return obj, nil
}

// resolve loads the object named by ref, trying the fallback kinds in
// precedence order when ref has no kind.
func (s *store) resolve(ctx context.Context, ref models.ObjectRef, pick func([]*models.SchemaObject) *models.SchemaObject, fallback []models.ObjectKind) (*models.SchemaObject, error) {
	kinds := graph.KindsFor(ref, fallback)
	kindNames := make([]string, len(kinds))
	for i, k := range kinds {
		kindNames[i] = string(k)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+objectColumns+` FROM schema_objects WHERE physical_name = $1 AND kind = ANY($2)`,
		ref.PhysicalName, kindNames)
	if err != nil {
		return nil, err
	}
	candidates, err := collectObjects(rows)
	if err != nil {
		return nil, err
	}
	if ref.Kind != "" {
		if len(candidates) == 0 {
			return nil, nil
		}
		return candidates[0], nil
	}
	return pick(candidates), nil
}

func (s *store) ImportField(ctx context.Context, owner models.ObjectRef, physicalName, logicalName string) (*models.FieldDescriptor, error) {
	if err := graph.CheckImportField(owner, physicalName); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	ownerObj, err := s.resolve(ctx, owner, graph.ResolveOwner, graph.OwnerKinds)
	if err != nil {
		return nil, unavailable("resolve field owner", err)
	}
	if ownerObj == nil {
		return nil, apperrors.NewMissingEndpoint("import_field", "owner", owner.String())
	}

	var f models.FieldDescriptor
	err = s.db.QueryRow(ctx, `
		INSERT INTO schema_fields (id, owner_id, physical_name, logical_name)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (owner_id, physical_name) DO UPDATE
		SET logical_name = COALESCE(EXCLUDED.logical_name, schema_fields.logical_name),
		    updated_at = CASE
		        WHEN EXCLUDED.logical_name IS DISTINCT FROM schema_fields.logical_name
		             AND EXCLUDED.logical_name IS NOT NULL THEN now()
		        ELSE schema_fields.updated_at END
		RETURNING id, owner_id, physical_name, COALESCE(logical_name, ''), created_at, updated_at`,
		uuid.New(), ownerObj.ID, physicalName, logicalName,
	).Scan(&f.ID, &f.OwnerID, &f.PhysicalName, &f.LogicalName, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, unavailable("import field", err)
	}
	f.OwnerKind = ownerObj.Kind
	f.OwningPhysicalName = ownerObj.PhysicalName
	return &f, nil
}

func (s *store) CreateContainmentEdge(ctx context.Context, parent, child models.ObjectRef) (*models.ContainmentEdge, error) {
	if err := graph.CheckCreateEdge(parent, child); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	p, err := s.resolve(ctx, parent, graph.ResolveChild, nil)
	if err != nil {
		return nil, unavailable("resolve edge parent", err)
	}
	if p == nil {
		return nil, apperrors.NewMissingEndpoint("create_edge", "parent", parent.String())
	}
	c, err := s.resolve(ctx, child, graph.ResolveChild, graph.ChildKinds)
	if err != nil {
		return nil, unavailable("resolve edge child", err)
	}
	if c == nil {
		return nil, apperrors.NewMissingEndpoint("create_edge", "child", child.String())
	}
	if err := graph.ValidateContainment(p.Kind, c.Kind); err != nil {
		return nil, err
	}

	var createdAt time.Time
	err = s.db.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO schema_containment (parent_id, child_id)
			VALUES ($1, $2)
			ON CONFLICT (parent_id, child_id) DO NOTHING
			RETURNING created_at
		)
		SELECT created_at FROM ins
		UNION ALL
		SELECT created_at FROM schema_containment WHERE parent_id = $1 AND child_id = $2
		LIMIT 1`,
		p.ID, c.ID).Scan(&createdAt)
	if err != nil {
		return nil, unavailable("create containment edge", err)
	}

	return &models.ContainmentEdge{
		ParentID:  p.ID,
		ChildID:   c.ID,
		Parent:    p.Ref(),
		Child:     c.Ref(),
		CreatedAt: createdAt,
	}, nil
}

func (s *store) FindByName(ctx context.Context, name string) ([]models.GraphEntity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT `+objectColumns+` FROM schema_objects WHERE physical_name = $1 OR logical_name = $1`, name)
	if err != nil {
		return nil, unavailable("find schema objects", err)
	}
	objs, err := collectObjects(rows)
	if err != nil {
		return nil, unavailable("scan schema objects", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT `+fieldColumns+`
		FROM schema_fields f
		JOIN schema_objects o ON o.id = f.owner_id
		WHERE f.physical_name = $1 OR f.logical_name = $1`, name)
	if err != nil {
		return nil, unavailable("find schema fields", err)
	}
	fields, err := collectFields(rows)
	if err != nil {
		return nil, unavailable("scan schema fields", err)
	}

	graph.SortObjects(objs)
	graph.SortFields(fields)
	out := make([]models.GraphEntity, 0, len(objs)+len(fields))
	for _, o := range objs {
		out = append(out, models.ObjectEntity(o, ""))
	}
	for _, f := range fields {
		out = append(out, models.FieldEntity(f, ""))
	}
	return out, nil
}

func (s *store) TraverseOneHop(ctx context.Context, id uuid.UUID, direction models.Direction) ([]models.GraphEntity, error) {
	if !graph.ValidDirection(direction) {
		return nil, fmt.Errorf("unknown direction %q", direction)
	}
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	// A field id resolves to its owner.
	var ownerID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT owner_id FROM schema_fields WHERE id = $1`, id).Scan(&ownerID)
	switch {
	case err == nil:
		owner, err := scanObject(s.db.QueryRow(ctx, `SELECT `+objectColumns+` FROM schema_objects WHERE id = $1`, ownerID))
		if err != nil {
			return nil, unavailable("load field owner", err)
		}
		return graph.FieldHop(direction, owner), nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, unavailable("load field", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_objects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, unavailable("load schema object", err)
	}
	if !exists {
		return nil, fmt.Errorf("schema entity %s: %w", id, apperrors.ErrNotFound)
	}

	var children, parents []*models.SchemaObject
	var fields []*models.FieldDescriptor

	if direction != models.DirectionIncoming {
		rows, err := s.db.Query(ctx, `
			SELECT o.id, o.kind, o.physical_name, COALESCE(o.logical_name, ''), o.created_at, o.updated_at
			FROM schema_containment c
			JOIN schema_objects o ON o.id = c.child_id
			WHERE c.parent_id = $1`, id)
		if err != nil {
			return nil, unavailable("load children", err)
		}
		if children, err = collectObjects(rows); err != nil {
			return nil, unavailable("scan children", err)
		}

		rows, err = s.db.Query(ctx, `
			SELECT `+fieldColumns+`
			FROM schema_fields f
			JOIN schema_objects o ON o.id = f.owner_id
			WHERE f.owner_id = $1`, id)
		if err != nil {
			return nil, unavailable("load fields", err)
		}
		if fields, err = collectFields(rows); err != nil {
			return nil, unavailable("scan fields", err)
		}
	}

	if direction != models.DirectionOutgoing {
		rows, err := s.db.Query(ctx, `
			SELECT o.id, o.kind, o.physical_name, COALESCE(o.logical_name, ''), o.created_at, o.updated_at
			FROM schema_containment c
			JOIN schema_objects o ON o.id = c.parent_id
			WHERE c.child_id = $1`, id)
		if err != nil {
			return nil, unavailable("load parents", err)
		}
		if parents, err = collectObjects(rows); err != nil {
			return nil, unavailable("scan parents", err)
		}
	}

	return graph.ObjectHop(direction, children, parents, fields), nil
}

// Snapshot reads all three tables in one read-only transaction so the
// export sees a consistent graph.
func (s *store) Snapshot(ctx context.Context) (*models.GraphSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	snap := &models.GraphSnapshot{}
	err := s.db.ReadOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+objectColumns+` FROM schema_objects`)
		if err != nil {
			return fmt.Errorf("read schema objects: %w", err)
		}
		if snap.Objects, err = collectObjects(rows); err != nil {
			return fmt.Errorf("scan schema objects: %w", err)
		}

		rows, err = tx.Query(ctx, `
			SELECT `+fieldColumns+`
			FROM schema_fields f
			JOIN schema_objects o ON o.id = f.owner_id`)
		if err != nil {
			return fmt.Errorf("read schema fields: %w", err)
		}
		if snap.Fields, err = collectFields(rows); err != nil {
			return fmt.Errorf("scan schema fields: %w", err)
		}

		rows, err = tx.Query(ctx, `
			SELECT c.parent_id, c.child_id, p.kind, p.physical_name, ch.kind, ch.physical_name, c.created_at
			FROM schema_containment c
			JOIN schema_objects p ON p.id = c.parent_id
			JOIN schema_objects ch ON ch.id = c.child_id`)
		if err != nil {
			return fmt.Errorf("read containment edges: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e models.ContainmentEdge
			var pKind, cKind string
			if err := rows.Scan(&e.ParentID, &e.ChildID, &pKind, &e.Parent.PhysicalName, &cKind, &e.Child.PhysicalName, &e.CreatedAt); err != nil {
				return fmt.Errorf("scan containment edge: %w", err)
			}
			e.Parent.Kind = models.ObjectKind(pKind)
			e.Child.Kind = models.ObjectKind(cKind)
			snap.Edges = append(snap.Edges, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, unavailable("snapshot", err)
	}

	if snap.Objects == nil {
		snap.Objects = []*models.SchemaObject{}
	}
	graph.SortObjects(snap.Objects)
	graph.SortFields(snap.Fields)
	graph.SortEdges(snap.Edges)
	return snap, nil
}

func (s *store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return unavailable("ping graph database", err)
	}
	return nil
}

func (s *store) Close() error {
	return nil
}
