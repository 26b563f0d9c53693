package models

// TabularRow is one row of the tabular relationship projection.
// Views holds the chain of views between the root and the leaf, outermost
// first; it is empty when a dataset contains a table directly.
type TabularRow struct {
	Dataset        string   `json:"dataset,omitempty"`
	DatasetLogical string   `json:"dataset_logical,omitempty"`
	Views          []string `json:"views,omitempty"`
	ViewsLogical   []string `json:"views_logical,omitempty"`
	Table          string   `json:"table,omitempty"`
	TableLogical   string   `json:"table_logical,omitempty"`
	Field          string   `json:"field,omitempty"`
	FieldLogical   string   `json:"field_logical,omitempty"`
}

// ExportKind names an export artifact type.
type ExportKind string

const (
	ExportTabular ExportKind = "tabular"
	ExportDiagram ExportKind = "diagram"
)

// ExportArtifact is returned by an export. Path is the file handle
// for the primary artifact.
type ExportArtifact struct {
	Kind      ExportKind `json:"kind"`
	Path      string     `json:"path"`
	FileName  string     `json:"file_name"`
	Extra     []string   `json:"extra,omitempty"`
	Rows      int        `json:"rows"`
	SHA256    string     `json:"sha256"`
	SizeBytes int64      `json:"size_bytes"`
}
