package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectKind is the kind of a schema object in the relationship graph.
type ObjectKind string

const (
	KindTable   ObjectKind = "table"
	KindView    ObjectKind = "view"
	KindDataset ObjectKind = "dataset"
)

// ValidObjectKinds lists every supported object kind.
var ValidObjectKinds = []ObjectKind{KindTable, KindView, KindDataset}

// IsValid reports whether k is a known kind.
func (k ObjectKind) IsValid() bool {
	for _, v := range ValidObjectKinds {
		if k == v {
			return true
		}
	}
	return false
}

// CanOwnFields reports whether objects of this kind may own fields.
func (k ObjectKind) CanOwnFields() bool {
	return k == KindTable || k == KindView
}

// Layer is the fixed top-down diagram layer for the kind.
func (k ObjectKind) Layer() int {
	switch k {
	case KindDataset:
		return 0
	case KindView:
		return 1
	default:
		return 2
	}
}

// ParseObjectKind parses a kind name, accepting any letter case.
func ParseObjectKind(s string) (ObjectKind, error) {
	switch strings.ToLower(s) {
	case "table":
		return KindTable, nil
	case "view":
		return KindView, nil
	case "dataset":
		return KindDataset, nil
	}
	return "", fmt.Errorf("unknown object kind %q", s)
}

// SchemaObject is a table, view or dataset tracked in the graph.
type SchemaObject struct {
	ID           uuid.UUID  `json:"id"`
	Kind         ObjectKind `json:"kind"`
	PhysicalName string     `json:"physical_name"`
	LogicalName  string     `json:"logical_name,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Label returns the logical name when present, else the physical name.
func (o *SchemaObject) Label() string {
	if o.LogicalName != "" {
		return o.LogicalName
	}
	return o.PhysicalName
}

// Ref returns the kind-qualified reference for the object.
func (o *SchemaObject) Ref() ObjectRef {
	return ObjectRef{Kind: o.Kind, PhysicalName: o.PhysicalName}
}

// FieldDescriptor is a column belonging to exactly one table or view.
type FieldDescriptor struct {
	ID                 uuid.UUID  `json:"id"`
	OwnerID            uuid.UUID  `json:"owner_id"`
	OwnerKind          ObjectKind `json:"owner_kind"`
	OwningPhysicalName string     `json:"owning_physical_name"`
	PhysicalName       string     `json:"physical_name"`
	LogicalName        string     `json:"logical_name,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Label returns the logical name when present, else the physical name.
func (f *FieldDescriptor) Label() string {
	if f.LogicalName != "" {
		return f.LogicalName
	}
	return f.PhysicalName
}

// ObjectRef identifies a schema object by kind and physical name.
// An empty Kind means "resolve by name".
type ObjectRef struct {
	Kind         ObjectKind `json:"kind,omitempty"`
	PhysicalName string     `json:"physical_name"`
}

func (r ObjectRef) String() string {
	if r.Kind == "" {
		return r.PhysicalName
	}
	return string(r.Kind) + ":" + r.PhysicalName
}

// ContainmentEdge is a directed parent -> child relation meaning the parent
// is derived from or composed of the child.
type ContainmentEdge struct {
	ParentID  uuid.UUID `json:"parent_id"`
	ChildID   uuid.UUID `json:"child_id"`
	Parent    ObjectRef `json:"parent"`
	Child     ObjectRef `json:"child"`
	CreatedAt time.Time `json:"created_at"`
}

// Direction selects which containment edges a one-hop traversal follows.
type Direction string

const (
	// DirectionOutgoing follows parent -> child edges and includes owned fields.
	DirectionOutgoing Direction = "outgoing"
	// DirectionIncoming follows child -> parent edges, or field -> owner.
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

// EntityType tags the variant held by a GraphEntity.
type EntityType string

const (
	EntityObject EntityType = "object"
	EntityField  EntityType = "field"
)

// GraphEntity is either a SchemaObject or a FieldDescriptor.
type GraphEntity struct {
	Type   EntityType       `json:"type"`
	Object *SchemaObject    `json:"object,omitempty"`
	Field  *FieldDescriptor `json:"field,omitempty"`
	// Relation is set by traversals: "child", "parent", "field" or "owner".
	Relation string `json:"relation,omitempty"`
}

// ID returns the identifier of the wrapped entity.
func (e GraphEntity) ID() uuid.UUID {
	if e.Field != nil {
		return e.Field.ID
	}
	if e.Object != nil {
		return e.Object.ID
	}
	return uuid.Nil
}

// Name returns the physical name of the wrapped entity.
func (e GraphEntity) Name() string {
	if e.Field != nil {
		return e.Field.PhysicalName
	}
	if e.Object != nil {
		return e.Object.PhysicalName
	}
	return ""
}

// ObjectEntity wraps a schema object.
func ObjectEntity(o *SchemaObject, relation string) GraphEntity {
	return GraphEntity{Type: EntityObject, Object: o, Relation: relation}
}

// FieldEntity wraps a field descriptor.
func FieldEntity(f *FieldDescriptor, relation string) GraphEntity {
	return GraphEntity{Type: EntityField, Field: f, Relation: relation}
}

// GraphSnapshot is a full read of the graph used by exports.
type GraphSnapshot struct {
	Objects []*SchemaObject    `json:"objects"`
	Fields  []*FieldDescriptor `json:"fields"`
	Edges   []*ContainmentEdge `json:"edges"`
}

// IsEmpty reports whether the snapshot holds no schema objects.
func (s *GraphSnapshot) IsEmpty() bool {
	return s == nil || len(s.Objects) == 0
}
