// Package neo4j is the graph.Store backed by a Neo4j database. Objects and
// fields are nodes; containment and ownership are relationships.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/retry"
)

// Config holds the connection settings.
type Config struct {
	URI          string
	User         string
	Password     string
	Database     string
	QueryTimeout time.Duration
}

var constraints = []string{
	`CREATE CONSTRAINT schema_object_id IF NOT EXISTS FOR (o:SchemaObject) REQUIRE o.id IS UNIQUE`,
	`CREATE CONSTRAINT schema_object_key IF NOT EXISTS FOR (o:SchemaObject) REQUIRE (o.kind, o.physical_name) IS UNIQUE`,
	`CREATE CONSTRAINT schema_field_id IF NOT EXISTS FOR (f:SchemaField) REQUIRE f.id IS UNIQUE`,
	`CREATE CONSTRAINT schema_field_key IF NOT EXISTS FOR (f:SchemaField) REQUIRE (f.owner_id, f.physical_name) IS UNIQUE`,
}

type store struct {
	driver       neo4j.DriverWithContext
	database     string
	queryTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewStore connects to Neo4j, waiting for it to accept connections, and
// creates the uniqueness constraints the imports rely on.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (graph.Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return driver.VerifyConnectivity(ctx)
	}); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &store{
		driver:       driver,
		database:     cfg.Database,
		queryTimeout: timeout,
		logger:       logger.Named("graph-neo4j"),
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, c := range constraints {
		if _, err := s.write(ctx, c, nil); err != nil {
			_ = driver.Close(ctx)
			return nil, fmt.Errorf("failed to create neo4j constraint: %w", err)
		}
	}

	s.logger.Info("Connected to Neo4j", zap.String("database", cfg.Database))
	return s, nil
}

var _ graph.Store = (*store)(nil)

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, apperrors.ErrGraphUnavailable, err)
}

func (s *store) query(ctx context.Context, cypher string, params map[string]any, opts ...neo4j.ExecuteQueryConfigurationOption) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	opts = append(opts, neo4j.ExecuteQueryWithDatabase(s.database))
	result, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

func (s *store) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return s.query(ctx, cypher, params, neo4j.ExecuteQueryWithReadersRouting())
}

func (s *store) write(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return s.query(ctx, cypher, params, neo4j.ExecuteQueryWithWritersRouting())
}

func propString(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func propTime(props map[string]any, key string) time.Time {
	if t, ok := props[key].(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}

func propMap(rec *neo4j.Record, key string) (map[string]any, error) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no %q column", key)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("column %q is %T, not a map", key, v)
	}
	return m, nil
}

func objectFrom(props map[string]any) (*models.SchemaObject, error) {
	id, err := uuid.Parse(propString(props, "id"))
	if err != nil {
		return nil, fmt.Errorf("invalid schema object id: %w", err)
	}
	return &models.SchemaObject{
		ID:           id,
		Kind:         models.ObjectKind(propString(props, "kind")),
		PhysicalName: propString(props, "physical_name"),
		LogicalName:  propString(props, "logical_name"),
		CreatedAt:    propTime(props, "created_at"),
		UpdatedAt:    propTime(props, "updated_at"),
	}, nil
}

func fieldFrom(props map[string]any) (*models.FieldDescriptor, error) {
	id, err := uuid.Parse(propString(props, "id"))
	if err != nil {
		return nil, fmt.Errorf("invalid field id: %w", err)
	}
	ownerID, err := uuid.Parse(propString(props, "owner_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid field owner id: %w", err)
	}
	return &models.FieldDescriptor{
		ID:                 id,
		OwnerID:            ownerID,
		OwnerKind:          models.ObjectKind(propString(props, "owner_kind")),
		OwningPhysicalName: propString(props, "owner_name"),
		PhysicalName:       propString(props, "physical_name"),
		LogicalName:        propString(props, "logical_name"),
		CreatedAt:          propTime(props, "created_at"),
		UpdatedAt:          propTime(props, "updated_at"),
	}, nil
}

func objectsFrom(records []*neo4j.Record, key string) ([]*models.SchemaObject, error) {
	out := make([]*models.SchemaObject, 0, len(records))
	for _, rec := range records {
		props, err := propMap(rec, key)
		if err != nil {
			return nil, err
		}
		o, err := objectFrom(props)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func fieldsFrom(records []*neo4j.Record, key string) ([]*models.FieldDescriptor, error) {
	out := make([]*models.FieldDescriptor, 0, len(records))
	for _, rec := range records {
		props, err := propMap(rec, key)
		if err != nil {
			return nil, err
		}
		f, err := fieldFrom(props)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// SET items apply in order, so updated_at is computed before logical_name
// changes.
const importObjectCypher = `
MERGE (o:SchemaObject {kind: $kind, physical_name: $name})
ON CREATE SET o.id = $id, o.logical_name = $logical, o.created_at = $now, o.updated_at = $now
ON MATCH SET
	o.updated_at = CASE WHEN $logical <> '' AND $logical <> o.logical_name THEN $now ELSE o.updated_at END,
	o.logical_name = CASE WHEN $logical <> '' THEN $logical ELSE o.logical_name END
RETURN o {.*} AS obj`

func (s *store) ImportSchemaObject(ctx context.Context, kind models.ObjectKind, physicalName, logicalName string) (*models.SchemaObject, error) {
	if err := graph.CheckImportObject(kind, physicalName); err != nil {
		return nil, err
	}

	records, err := s.write(ctx, importObjectCypher, map[string]any{
		"kind":    string(kind),
		"name":    physicalName,
		"logical": logicalName,
		"id":      uuid.NewString(),
		"now":     s.now(),
	})
	if err != nil {
		return nil, unavailable("import schema object", err)
	}
	objs, err := objectsFrom(records, "obj")
	if err != nil {
		return nil, fmt.Errorf("failed to read imported schema object: %w", err)
	}
	if len(objs) != 1 {
		return nil, fmt.Errorf("import of %s returned %d objects", physicalName, len(objs))
	}
	return objs[0], nil
}

func (s *store) resolve(ctx context.Context, ref models.ObjectRef, fallback []models.ObjectKind) (*models.SchemaObject, error) {
	kinds := graph.KindsFor(ref, fallback)
	kindNames := make([]any, len(kinds))
	for i, k := range kinds {
		kindNames[i] = string(k)
	}

	records, err := s.read(ctx,
		`MATCH (o:SchemaObject {physical_name: $name}) WHERE o.kind IN $kinds RETURN o {.*} AS obj`,
		map[string]any{"name": ref.PhysicalName, "kinds": kindNames})
	if err != nil {
		return nil, err
	}
	candidates, err := objectsFrom(records, "obj")
	if err != nil {
		return nil, err
	}
	if ref.Kind != "" {
		if len(candidates) == 0 {
			return nil, nil
		}
		return candidates[0], nil
	}
	return graph.ResolveOwner(candidates), nil
}

const importFieldCypher = `
MATCH (o:SchemaObject {id: $owner_id})
MERGE (f:SchemaField {owner_id: $owner_id, physical_name: $name})
ON CREATE SET f.id = $id, f.logical_name = $logical, f.created_at = $now, f.updated_at = $now
ON MATCH SET
	f.updated_at = CASE WHEN $logical <> '' AND $logical <> f.logical_name THEN $now ELSE f.updated_at END,
	f.logical_name = CASE WHEN $logical <> '' THEN $logical ELSE f.logical_name END
MERGE (o)-[:HAS_FIELD]->(f)
RETURN f {.*, owner_kind: o.kind, owner_name: o.physical_name} AS field`

func (s *store) ImportField(ctx context.Context, owner models.ObjectRef, physicalName, logicalName string) (*models.FieldDescriptor, error) {
	if err := graph.CheckImportField(owner, physicalName); err != nil {
		return nil, err
	}

	ownerObj, err := s.resolve(ctx, owner, graph.OwnerKinds)
	if err != nil {
		return nil, unavailable("resolve field owner", err)
	}
	if ownerObj == nil {
		return nil, apperrors.NewMissingEndpoint("import_field", "owner", owner.String())
	}

	records, err := s.write(ctx, importFieldCypher, map[string]any{
		"owner_id": ownerObj.ID.String(),
		"name":     physicalName,
		"logical":  logicalName,
		"id":       uuid.NewString(),
		"now":      s.now(),
	})
	if err != nil {
		return nil, unavailable("import field", err)
	}
	fields, err := fieldsFrom(records, "field")
	if err != nil {
		return nil, fmt.Errorf("failed to read imported field: %w", err)
	}
	if len(fields) != 1 {
		// The owner disappeared between resolve and write.
		return nil, apperrors.NewMissingEndpoint("import_field", "owner", owner.String())
	}
	return fields[0], nil
}

func (s *store) CreateContainmentEdge(ctx context.Context, parent, child models.ObjectRef) (*models.ContainmentEdge, error) {
	if err := graph.CheckCreateEdge(parent, child); err != nil {
		return nil, err
	}

	p, err := s.resolve(ctx, parent, nil)
	if err != nil {
		return nil, unavailable("resolve edge parent", err)
	}
	if p == nil {
		return nil, apperrors.NewMissingEndpoint("create_edge", "parent", parent.String())
	}
	c, err := s.resolve(ctx, child, graph.ChildKinds)
	if err != nil {
		return nil, unavailable("resolve edge child", err)
	}
	if c == nil {
		return nil, apperrors.NewMissingEndpoint("create_edge", "child", child.String())
	}
	if err := graph.ValidateContainment(p.Kind, c.Kind); err != nil {
		return nil, err
	}

	records, err := s.write(ctx, `
		MATCH (p:SchemaObject {id: $parent_id}), (c:SchemaObject {id: $child_id})
		MERGE (p)-[r:CONTAINS]->(c)
		ON CREATE SET r.created_at = $now
		RETURN r.created_at AS created_at`,
		map[string]any{"parent_id": p.ID.String(), "child_id": c.ID.String(), "now": s.now()})
	if err != nil {
		return nil, unavailable("create containment edge", err)
	}
	if len(records) == 0 {
		return nil, apperrors.NewMissingEndpoint("create_edge", "child", child.String())
	}
	createdAt, _, _ := neo4j.GetRecordValue[time.Time](records[0], "created_at")

	return &models.ContainmentEdge{
		ParentID:  p.ID,
		ChildID:   c.ID,
		Parent:    p.Ref(),
		Child:     c.Ref(),
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (s *store) FindByName(ctx context.Context, name string) ([]models.GraphEntity, error) {
	if name == "" {
		return []models.GraphEntity{}, nil
	}
	params := map[string]any{"name": name}

	records, err := s.read(ctx, `
		MATCH (o:SchemaObject)
		WHERE o.physical_name = $name OR (o.logical_name <> '' AND o.logical_name = $name)
		RETURN o {.*} AS obj`, params)
	if err != nil {
		return nil, unavailable("find schema objects", err)
	}
	objs, err := objectsFrom(records, "obj")
	if err != nil {
		return nil, err
	}

	records, err = s.read(ctx, `
		MATCH (o:SchemaObject)-[:HAS_FIELD]->(f:SchemaField)
		WHERE f.physical_name = $name OR (f.logical_name <> '' AND f.logical_name = $name)
		RETURN f {.*, owner_kind: o.kind, owner_name: o.physical_name} AS field`, params)
	if err != nil {
		return nil, unavailable("find schema fields", err)
	}
	fields, err := fieldsFrom(records, "field")
	if err != nil {
		return nil, err
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
	params := map[string]any{"id": id.String()}

	records, err := s.read(ctx,
		`MATCH (o:SchemaObject)-[:HAS_FIELD]->(:SchemaField {id: $id}) RETURN o {.*} AS obj`, params)
	if err != nil {
		return nil, unavailable("load field owner", err)
	}
	if len(records) > 0 {
		owners, err := objectsFrom(records, "obj")
		if err != nil {
			return nil, err
		}
		return graph.FieldHop(direction, owners[0]), nil
	}

	records, err = s.read(ctx, `MATCH (o:SchemaObject {id: $id}) RETURN count(o) AS n`, params)
	if err != nil {
		return nil, unavailable("load schema object", err)
	}
	if n, _, _ := neo4j.GetRecordValue[int64](records[0], "n"); n == 0 {
		return nil, fmt.Errorf("schema entity %s: %w", id, apperrors.ErrNotFound)
	}

	var children, parents []*models.SchemaObject
	var fields []*models.FieldDescriptor

	if direction != models.DirectionIncoming {
		records, err := s.read(ctx,
			`MATCH (:SchemaObject {id: $id})-[:CONTAINS]->(c:SchemaObject) RETURN c {.*} AS obj`, params)
		if err != nil {
			return nil, unavailable("load children", err)
		}
		if children, err = objectsFrom(records, "obj"); err != nil {
			return nil, err
		}

		records, err = s.read(ctx, `
			MATCH (o:SchemaObject {id: $id})-[:HAS_FIELD]->(f:SchemaField)
			RETURN f {.*, owner_kind: o.kind, owner_name: o.physical_name} AS field`, params)
		if err != nil {
			return nil, unavailable("load fields", err)
		}
		if fields, err = fieldsFrom(records, "field"); err != nil {
			return nil, err
		}
	}

	if direction != models.DirectionOutgoing {
		records, err := s.read(ctx,
			`MATCH (p:SchemaObject)-[:CONTAINS]->(:SchemaObject {id: $id}) RETURN p {.*} AS obj`, params)
		if err != nil {
			return nil, unavailable("load parents", err)
		}
		if parents, err = objectsFrom(records, "obj"); err != nil {
			return nil, err
		}
	}

	return graph.ObjectHop(direction, children, parents, fields), nil
}

// Snapshot reads the graph inside one read transaction.
func (s *store) Snapshot(ctx context.Context) (*models.GraphSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			s.logger.Warn("Failed to close neo4j session", zap.Error(err))
		}
	}()

	snap, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (*models.GraphSnapshot, error) {
		collect := func(cypher string) ([]*neo4j.Record, error) {
			res, err := tx.Run(ctx, cypher, nil)
			if err != nil {
				return nil, err
			}
			return res.Collect(ctx)
		}

		objRecords, err := collect(`MATCH (o:SchemaObject) RETURN o {.*} AS obj`)
		if err != nil {
			return nil, err
		}
		fieldRecords, err := collect(`
			MATCH (o:SchemaObject)-[:HAS_FIELD]->(f:SchemaField)
			RETURN f {.*, owner_kind: o.kind, owner_name: o.physical_name} AS field`)
		if err != nil {
			return nil, err
		}
		edgeRecords, err := collect(`
			MATCH (p:SchemaObject)-[r:CONTAINS]->(c:SchemaObject)
			RETURN p.id AS parent_id, p.kind AS parent_kind, p.physical_name AS parent_name,
			       c.id AS child_id, c.kind AS child_kind, c.physical_name AS child_name,
			       r.created_at AS created_at`)
		if err != nil {
			return nil, err
		}

		snap := &models.GraphSnapshot{}
		if snap.Objects, err = objectsFrom(objRecords, "obj"); err != nil {
			return nil, err
		}
		if snap.Fields, err = fieldsFrom(fieldRecords, "field"); err != nil {
			return nil, err
		}
		for _, rec := range edgeRecords {
			e, err := edgeFrom(rec)
			if err != nil {
				return nil, err
			}
			snap.Edges = append(snap.Edges, e)
		}
		return snap, nil
	})
	if err != nil {
		return nil, unavailable("read graph snapshot", err)
	}

	graph.SortObjects(snap.Objects)
	graph.SortFields(snap.Fields)
	graph.SortEdges(snap.Edges)
	return snap, nil
}

func edgeFrom(rec *neo4j.Record) (*models.ContainmentEdge, error) {
	str := func(key string) string {
		v, _, _ := neo4j.GetRecordValue[string](rec, key)
		return v
	}
	parentID, err := uuid.Parse(str("parent_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid edge parent id: %w", err)
	}
	childID, err := uuid.Parse(str("child_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid edge child id: %w", err)
	}
	createdAt, _, _ := neo4j.GetRecordValue[time.Time](rec, "created_at")
	return &models.ContainmentEdge{
		ParentID:  parentID,
		ChildID:   childID,
		Parent:    models.ObjectRef{Kind: models.ObjectKind(str("parent_kind")), PhysicalName: str("parent_name")},
		Child:     models.ObjectRef{Kind: models.ObjectKind(str("child_kind")), PhysicalName: str("child_name")},
		CreatedAt: createdAt.UTC(),
	}, nil
}

func (s *store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return unavailable("ping neo4j", err)
	}
	return nil
}

func (s *store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.driver.Close(ctx)
}
