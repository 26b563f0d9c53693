package graph

import (
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Relation labels attached to traversal results.
const (
	RelationChild  = "child"
	RelationParent = "parent"
	RelationField  = "field"
	RelationOwner  = "owner"
)

// ObjectHop assembles the one-hop neighbourhood of a schema object.
// Outgoing yields children then owned fields; Incoming yields parents.
func ObjectHop(direction models.Direction, children, parents []*models.SchemaObject, fields []*models.FieldDescriptor) []models.GraphEntity {
	out := make([]models.GraphEntity, 0, len(children)+len(parents)+len(fields))
	if direction == models.DirectionOutgoing || direction == models.DirectionBoth {
		SortObjects(children)
		for _, c := range children {
			out = append(out, models.ObjectEntity(c, RelationChild))
		}
		SortFields(fields)
		for _, f := range fields {
			out = append(out, models.FieldEntity(f, RelationField))
		}
	}
	if direction == models.DirectionIncoming || direction == models.DirectionBoth {
		SortObjects(parents)
		for _, p := range parents {
			out = append(out, models.ObjectEntity(p, RelationParent))
		}
	}
	return out
}

// FieldHop assembles the one-hop neighbourhood of a field: its owner, on
// the incoming side only.
func FieldHop(direction models.Direction, owner *models.SchemaObject) []models.GraphEntity {
	if owner == nil || direction == models.DirectionOutgoing {
		return []models.GraphEntity{}
	}
	return []models.GraphEntity{models.ObjectEntity(owner, RelationOwner)}
}

// ValidDirection reports whether d is a known direction.
func ValidDirection(d models.Direction) bool {
	switch d {
	case models.DirectionOutgoing, models.DirectionIncoming, models.DirectionBoth:
		return true
	}
	return false
}
