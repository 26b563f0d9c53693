package export

import (
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Diagram layers, top to bottom.
const (
	LayerDataset = 0
	LayerView    = 1
	LayerTable   = 2
	LayerField   = 3
	layerCount   = 4
)

// Node is one box of the layered diagram.
type Node struct {
	ID    string
	Kind  string // "dataset", "view", "table" or "field"
	Label string
	Layer int
	// Column is the node's position within its layer, left to right.
	Column int
}

// Edge connects two node IDs, parent above child.
type Edge struct {
	From string
	To   string
}

// Hierarchy is the layered projection of the tabular rows.
type Hierarchy struct {
	Layers [layerCount][]*Node
	Edges  []Edge
}

// Nodes returns every node, layer by layer.
func (h *Hierarchy) Nodes() []*Node {
	var out []*Node
	for _, layer := range h.Layers {
		out = append(out, layer...)
	}
	return out
}

// Width is the size of the widest layer.
func (h *Hierarchy) Width() int {
	w := 0
	for _, layer := range h.Layers {
		if len(layer) > w {
			w = len(layer)
		}
	}
	return w
}

func label(physical, logical string) string {
	if logical != "" {
		return logical
	}
	return physical
}

type hierarchyBuilder struct {
	h     *Hierarchy
	nodes map[string]*Node
	edges map[Edge]bool
}

func (b *hierarchyBuilder) node(kind string, layer int, id, lbl string) string {
	if _, ok := b.nodes[id]; !ok {
		n := &Node{ID: id, Kind: kind, Label: lbl, Layer: layer, Column: len(b.h.Layers[layer])}
		b.nodes[id] = n
		b.h.Layers[layer] = append(b.h.Layers[layer], n)
	}
	return id
}

func (b *hierarchyBuilder) edge(from, to string) {
	if from == "" || from == to {
		return
	}
	e := Edge{From: from, To: to}
	if !b.edges[e] {
		b.edges[e] = true
		b.h.Edges = append(b.h.Edges, e)
	}
}

// BuildHierarchy lays the rows out top-down: datasets, views, tables, then
// fields. Nodes keep the order in which they first appear in the rows, and
// are labelled with the logical name when present.
func BuildHierarchy(rows []models.TabularRow) *Hierarchy {
	b := &hierarchyBuilder{
		h:     &Hierarchy{},
		nodes: make(map[string]*Node),
		edges: make(map[Edge]bool),
	}

	for _, r := range rows {
		prev := ""
		if r.Dataset != "" {
			prev = b.node("dataset", LayerDataset, "dataset:"+r.Dataset, label(r.Dataset, r.DatasetLogical))
		}
		for i, v := range r.Views {
			logical := ""
			if i < len(r.ViewsLogical) {
				logical = r.ViewsLogical[i]
			}
			id := b.node("view", LayerView, "view:"+v, label(v, logical))
			b.edge(prev, id)
			prev = id
		}
		if r.Table != "" {
			id := b.node("table", LayerTable, "table:"+r.Table, label(r.Table, r.TableLogical))
			b.edge(prev, id)
			prev = id
		}
		if r.Field != "" && prev != "" {
			id := b.node("field", LayerField, "field:"+prev+"."+r.Field, label(r.Field, r.FieldLogical))
			b.edge(prev, id)
		}
	}
	return b.h
}
