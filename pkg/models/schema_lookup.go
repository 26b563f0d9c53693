package models

// RelatedEntity is one neighbour of a looked-up entity.
type RelatedEntity struct {
	Relation     string `json:"relation"`
	Kind         string `json:"kind"`
	PhysicalName string `json:"physical_name"`
	LogicalName  string `json:"logical_name,omitempty"`
}

// EntityDescription is a schema object or field with its one-hop
// neighbourhood. Owner is "kind:name" for fields.
type EntityDescription struct {
	Kind         string          `json:"kind"`
	PhysicalName string          `json:"physical_name"`
	LogicalName  string          `json:"logical_name,omitempty"`
	Owner        string          `json:"owner,omitempty"`
	Related      []RelatedEntity `json:"related"`
}

// EntityKind returns "field" for fields and the object kind otherwise.
func (e GraphEntity) EntityKind() string {
	if e.Field != nil {
		return "field"
	}
	if e.Object != nil {
		return string(e.Object.Kind)
	}
	return ""
}

// LogicalName returns the logical name of the wrapped entity.
func (e GraphEntity) LogicalName() string {
	if e.Field != nil {
		return e.Field.LogicalName
	}
	if e.Object != nil {
		return e.Object.LogicalName
	}
	return ""
}
