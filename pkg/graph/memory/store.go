// Package memory is an in-process graph.Store used for local development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

type fieldKey struct {
	owner uuid.UUID
	name  string
}

type edgeKey struct {
	parent, child uuid.UUID
}

// Store keeps the graph in maps guarded by a RWMutex.
type Store struct {
	mu        sync.RWMutex
	objects   map[models.ObjectRef]*models.SchemaObject
	objByID   map[uuid.UUID]*models.SchemaObject
	fields    map[fieldKey]*models.FieldDescriptor
	fieldByID map[uuid.UUID]*models.FieldDescriptor
	edges     map[edgeKey]*models.ContainmentEdge
	now       func() time.Time

	// Unavailable makes every call fail as if the backend were unreachable.
	Unavailable bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		objects:   make(map[models.ObjectRef]*models.SchemaObject),
		objByID:   make(map[uuid.UUID]*models.SchemaObject),
		fields:    make(map[fieldKey]*models.FieldDescriptor),
		fieldByID: make(map[uuid.UUID]*models.FieldDescriptor),
		edges:     make(map[edgeKey]*models.ContainmentEdge),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ graph.Store = (*Store)(nil)

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Unavailable {
		return fmt.Errorf("memory store: %w", apperrors.ErrGraphUnavailable)
	}
	return nil
}

func copyObject(o *models.SchemaObject) *models.SchemaObject {
	c := *o
	return &c
}

func copyField(f *models.FieldDescriptor) *models.FieldDescriptor {
	c := *f
	return &c
}

func (s *Store) ImportSchemaObject(ctx context.Context, kind models.ObjectKind, physicalName, logicalName string) (*models.SchemaObject, error) {
	if err := graph.CheckImportObject(kind, physicalName); err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref := models.ObjectRef{Kind: kind, PhysicalName: physicalName}
	now := s.now()
	if existing, ok := s.objects[ref]; ok {
		if logicalName != "" && logicalName != existing.LogicalName {
			existing.LogicalName = logicalName
			existing.UpdatedAt = now
		}
		return copyObject(existing), nil
	}

	obj := &models.SchemaObject{
		ID:           uuid.New(),
		Kind:         kind,
		PhysicalName: physicalName,
		LogicalName:  logicalName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.objects[ref] = obj
	s.objByID[obj.ID] = obj
	return copyObject(obj), nil
}

// resolve finds the object named by ref. Without a kind, the fallback kinds
// are tried in precedence order. Callers hold mu.
func (s *Store) resolve(ref models.ObjectRef, fallback []models.ObjectKind) *models.SchemaObject {
	for _, kind := range graph.KindsFor(ref, fallback) {
		if o, ok := s.objects[models.ObjectRef{Kind: kind, PhysicalName: ref.PhysicalName}]; ok {
			return o
		}
	}
	return nil
}

func (s *Store) ImportField(ctx context.Context, owner models.ObjectRef, physicalName, logicalName string) (*models.FieldDescriptor, error) {
	if err := graph.CheckImportField(owner, physicalName); err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ownerObj := s.resolve(owner, graph.OwnerKinds)
	if ownerObj == nil {
		return nil, apperrors.NewMissingEndpoint("import_field", "owner", owner.String())
	}

	key := fieldKey{owner: ownerObj.ID, name: physicalName}
	now := s.now()
	if existing, ok := s.fields[key]; ok {
		if logicalName != "" && logicalName != existing.LogicalName {
			existing.LogicalName = logicalName
			existing.UpdatedAt = now
		}
		return copyField(existing), nil
	}

	f := &models.FieldDescriptor{
		ID:                 uuid.New(),
		OwnerID:            ownerObj.ID,
		OwnerKind:          ownerObj.Kind,
		OwningPhysicalName: ownerObj.PhysicalName,
		PhysicalName:       physicalName,
		LogicalName:        logicalName,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.fields[key] = f
	s.fieldByID[f.ID] = f
	return copyField(f), nil
}

func (s *Store) CreateContainmentEdge(ctx context.Context, parent, child models.ObjectRef) (*models.ContainmentEdge, error) {
	if err := graph.CheckCreateEdge(parent, child); err != nil {
		return nil, err
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.resolve(parent, nil)
	if p == nil {
		return nil, apperrors.NewMissingEndpoint("create_edge", "parent", parent.String())
	}
	c := s.resolve(child, graph.ChildKinds)
	if c == nil {
		return nil, apperrors.NewMissingEndpoint("create_edge", "child", child.String())
	}
	if err := graph.ValidateContainment(p.Kind, c.Kind); err != nil {
		return nil, err
	}

	key := edgeKey{parent: p.ID, child: c.ID}
	if existing, ok := s.edges[key]; ok {
		e := *existing
		return &e, nil
	}
	e := &models.ContainmentEdge{
		ParentID:  p.ID,
		ChildID:   c.ID,
		Parent:    p.Ref(),
		Child:     c.Ref(),
		CreatedAt: s.now(),
	}
	s.edges[key] = e
	out := *e
	return &out, nil
}

func (s *Store) FindByName(ctx context.Context, name string) ([]models.GraphEntity, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var objs []*models.SchemaObject
	for _, o := range s.objects {
		if o.PhysicalName == name || (o.LogicalName != "" && o.LogicalName == name) {
			objs = append(objs, copyObject(o))
		}
	}
	var fields []*models.FieldDescriptor
	for _, f := range s.fields {
		if f.PhysicalName == name || (f.LogicalName != "" && f.LogicalName == name) {
			fields = append(fields, copyField(f))
		}
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

func (s *Store) TraverseOneHop(ctx context.Context, id uuid.UUID, direction models.Direction) ([]models.GraphEntity, error) {
	if !graph.ValidDirection(direction) {
		return nil, fmt.Errorf("unknown direction %q", direction)
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.fieldByID[id]; ok {
		var owner *models.SchemaObject
		if o, ok := s.objByID[f.OwnerID]; ok {
			owner = copyObject(o)
		}
		return graph.FieldHop(direction, owner), nil
	}

	if _, ok := s.objByID[id]; !ok {
		return nil, fmt.Errorf("schema entity %s: %w", id, apperrors.ErrNotFound)
	}

	var children, parents []*models.SchemaObject
	for k := range s.edges {
		if k.parent == id {
			children = append(children, copyObject(s.objByID[k.child]))
		}
		if k.child == id {
			parents = append(parents, copyObject(s.objByID[k.parent]))
		}
	}
	var fields []*models.FieldDescriptor
	for k, f := range s.fields {
		if k.owner == id {
			fields = append(fields, copyField(f))
		}
	}
	return graph.ObjectHop(direction, children, parents, fields), nil
}

func (s *Store) Snapshot(ctx context.Context) (*models.GraphSnapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &models.GraphSnapshot{
		Objects: make([]*models.SchemaObject, 0, len(s.objects)),
		Fields:  make([]*models.FieldDescriptor, 0, len(s.fields)),
		Edges:   make([]*models.ContainmentEdge, 0, len(s.edges)),
	}
	for _, o := range s.objects {
		snap.Objects = append(snap.Objects, copyObject(o))
	}
	for _, f := range s.fields {
		snap.Fields = append(snap.Fields, copyField(f))
	}
	for _, e := range s.edges {
		c := *e
		snap.Edges = append(snap.Edges, &c)
	}
	graph.SortObjects(snap.Objects)
	graph.SortFields(snap.Fields)
	graph.SortEdges(snap.Edges)
	return snap, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx)
}

func (s *Store) Close() error {
	return nil
}
