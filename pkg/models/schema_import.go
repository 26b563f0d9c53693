package models

// FieldSpec describes one field inside a SchemaDescriptor.
type FieldSpec struct {
	PhysicalName string `json:"physical_name" yaml:"physical_name"`
	LogicalName  string `json:"logical_name,omitempty" yaml:"logical_name,omitempty"`
}

// SchemaDescriptor is one item of a schema import request.
// Contains lists the physical names of the child tables/views.
type SchemaDescriptor struct {
	Kind         ObjectKind  `json:"kind" yaml:"kind"`
	PhysicalName string      `json:"physical_name" yaml:"physical_name"`
	LogicalName  string      `json:"logical_name,omitempty" yaml:"logical_name,omitempty"`
	Fields       []FieldSpec `json:"fields,omitempty" yaml:"fields,omitempty"`
	Contains     []string    `json:"contains,omitempty" yaml:"contains,omitempty"`
}

// SchemaDescriptorFile is the on-disk layout of a descriptor file.
type SchemaDescriptorFile struct {
	Objects []SchemaDescriptor `json:"objects" yaml:"objects"`
}

// FieldImportResult is the outcome of importing a single field.
type FieldImportResult struct {
	PhysicalName string `json:"physical_name"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// ItemImportResult is the outcome for one descriptor.
type ItemImportResult struct {
	Kind         ObjectKind          `json:"kind"`
	PhysicalName string              `json:"physical_name"`
	Success      bool                `json:"success"`
	Error        string              `json:"error,omitempty"`
	Fields       []FieldImportResult `json:"fields,omitempty"`
}

// Linking status values.
const (
	LinkingStatusOK      = "ok"
	LinkingStatusPartial = "partial"
	LinkingStatusFailed  = "failed"
	LinkingStatusSkipped = "skipped" // no containment was requested
)

// LinkFailure describes a containment edge that could not be created.
type LinkFailure struct {
	Parent      string `json:"parent"`
	Child       string `json:"child"`
	MissingName string `json:"missing_name,omitempty"`
	Error       string `json:"error"`
}

// LinkingResult reports the containment-linking phase, which runs after
// every item has been imported.
type LinkingResult struct {
	Status       string        `json:"status"`
	EdgesCreated int           `json:"edges_created"`
	Failures     []LinkFailure `json:"failures,omitempty"`
}

// ImportReport is returned by a schema import.
type ImportReport struct {
	Items     []ItemImportResult `json:"items"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Linking   LinkingResult      `json:"linking"`
}

// OK reports whether every item and every link succeeded.
func (r *ImportReport) OK() bool {
	return r.Failed == 0 && (r.Linking.Status == LinkingStatusOK || r.Linking.Status == LinkingStatusSkipped)
}
