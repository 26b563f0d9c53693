// Package export projects the schema graph into ordered rows and a layered
// hierarchy, and renders them as spreadsheet, slide deck and Mermaid files.
package export

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// ViewSeparator joins the view chain in a single spreadsheet cell.
const ViewSeparator = " > "

type projection struct {
	objects   map[uuid.UUID]*models.SchemaObject
	children  map[uuid.UUID][]*models.SchemaObject
	hasParent map[uuid.UUID]bool
	fields    map[uuid.UUID][]*models.FieldDescriptor
}

func newProjection(snap *models.GraphSnapshot) *projection {
	p := &projection{
		objects:   make(map[uuid.UUID]*models.SchemaObject, len(snap.Objects)),
		children:  make(map[uuid.UUID][]*models.SchemaObject),
		hasParent: make(map[uuid.UUID]bool),
		fields:    make(map[uuid.UUID][]*models.FieldDescriptor),
	}
	for _, o := range snap.Objects {
		p.objects[o.ID] = o
	}
	for _, e := range snap.Edges {
		child, ok := p.objects[e.ChildID]
		if !ok {
			continue
		}
		if _, ok := p.objects[e.ParentID]; !ok {
			continue
		}
		p.children[e.ParentID] = append(p.children[e.ParentID], child)
		p.hasParent[e.ChildID] = true
	}
	for _, f := range snap.Fields {
		p.fields[f.OwnerID] = append(p.fields[f.OwnerID], f)
	}
	for _, fs := range p.fields {
		sort.Slice(fs, func(i, j int) bool { return fs[i].PhysicalName < fs[j].PhysicalName })
	}
	for _, cs := range p.children {
		sortObjects(cs)
	}
	return p
}

func sortObjects(objs []*models.SchemaObject) {
	sort.Slice(objs, func(i, j int) bool {
		if objs[i].Kind.Layer() != objs[j].Kind.Layer() {
			return objs[i].Kind.Layer() < objs[j].Kind.Layer()
		}
		return objs[i].PhysicalName < objs[j].PhysicalName
	})
}

// TabularRows expands every containment path of the graph into rows.
//
// Paths start at objects without parents and follow containment edges down
// to tables, which end a path. A row is emitted for each field of the object
// ending the path, or a single field-less row when it has none. A child
// already on the current path is skipped, so cycles terminate. Rows are
// sorted by dataset, view chain, table and field.
func TabularRows(snap *models.GraphSnapshot) []models.TabularRow {
	if snap.IsEmpty() {
		return []models.TabularRow{}
	}
	p := newProjection(snap)

	roots := make([]*models.SchemaObject, 0)
	for _, o := range snap.Objects {
		if !p.hasParent[o.ID] {
			roots = append(roots, o)
		}
	}
	sortObjects(roots)

	rows := make([]models.TabularRow, 0)
	for _, root := range roots {
		onPath := map[uuid.UUID]bool{root.ID: true}
		p.walk(root, []*models.SchemaObject{root}, onPath, &rows)
	}

	SortRows(rows)
	return rows
}

func (p *projection) walk(obj *models.SchemaObject, path []*models.SchemaObject, onPath map[uuid.UUID]bool, rows *[]models.TabularRow) {
	expanded := false
	if obj.Kind != models.KindTable {
		for _, child := range p.children[obj.ID] {
			if onPath[child.ID] {
				continue
			}
			expanded = true
			onPath[child.ID] = true
			p.walk(child, append(path, child), onPath, rows)
			delete(onPath, child.ID)
		}
	}
	if expanded {
		return
	}
	*rows = append(*rows, p.pathRows(path)...)
}

// pathRows emits the rows for a finished path.
func (p *projection) pathRows(path []*models.SchemaObject) []models.TabularRow {
	var base models.TabularRow
	for _, o := range path {
		switch o.Kind {
		case models.KindDataset:
			base.Dataset = o.PhysicalName
			base.DatasetLogical = o.LogicalName
		case models.KindView:
			base.Views = append(base.Views, o.PhysicalName)
			base.ViewsLogical = append(base.ViewsLogical, o.LogicalName)
		case models.KindTable:
			base.Table = o.PhysicalName
			base.TableLogical = o.LogicalName
		}
	}

	fields := p.fields[path[len(path)-1].ID]
	if len(fields) == 0 {
		return []models.TabularRow{base}
	}
	out := make([]models.TabularRow, 0, len(fields))
	for _, f := range fields {
		row := base
		row.Views = append([]string(nil), base.Views...)
		row.ViewsLogical = append([]string(nil), base.ViewsLogical...)
		row.Field = f.PhysicalName
		row.FieldLogical = f.LogicalName
		out = append(out, row)
	}
	return out
}

// SortRows orders rows by dataset, view chain, table, then field.
func SortRows(rows []models.TabularRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		if va, vb := strings.Join(a.Views, ViewSeparator), strings.Join(b.Views, ViewSeparator); va != vb {
			return va < vb
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Field < b.Field
	})
}
