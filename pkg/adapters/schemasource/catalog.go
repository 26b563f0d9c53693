package schemasource

import (
	"sort"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Catalog accumulates discovered objects and turns them into descriptors.
type Catalog struct {
	objects map[models.ObjectRef]*catalogEntry
}

type catalogEntry struct {
	desc     models.SchemaDescriptor
	contains map[string]bool
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{objects: make(map[models.ObjectRef]*catalogEntry)}
}

func (c *Catalog) entry(kind models.ObjectKind, name string) *catalogEntry {
	ref := models.ObjectRef{Kind: kind, PhysicalName: name}
	e, ok := c.objects[ref]
	if !ok {
		e = &catalogEntry{
			desc:     models.SchemaDescriptor{Kind: kind, PhysicalName: name},
			contains: make(map[string]bool),
		}
		c.objects[ref] = e
	}
	return e
}

// AddObject records a table or view. A non-empty logical name replaces any
// previous one.
func (c *Catalog) AddObject(kind models.ObjectKind, name, logical string) {
	e := c.entry(kind, name)
	if logical != "" {
		e.desc.LogicalName = logical
	}
}

// AddColumn appends a field to a table or view, in call order.
func (c *Catalog) AddColumn(kind models.ObjectKind, owner, column, logical string) {
	e := c.entry(kind, owner)
	e.desc.Fields = append(e.desc.Fields, models.FieldSpec{PhysicalName: column, LogicalName: logical})
}

// AddDependency records that view reads from the named table or view.
func (c *Catalog) AddDependency(view, dependency string) {
	if view == dependency {
		return
	}
	c.entry(models.KindView, view).contains[dependency] = true
}

func (c *Catalog) known(name string) bool {
	_, table := c.objects[models.ObjectRef{Kind: models.KindTable, PhysicalName: name}]
	_, view := c.objects[models.ObjectRef{Kind: models.KindView, PhysicalName: name}]
	return table || view
}

// Descriptors returns every object, tables before views, each group sorted by
// name. Dependencies on objects outside the catalog are dropped.
func (c *Catalog) Descriptors() []models.SchemaDescriptor {
	out := make([]models.SchemaDescriptor, 0, len(c.objects))
	for _, e := range c.objects {
		desc := e.desc
		desc.Contains = nil
		for dep := range e.contains {
			if c.known(dep) {
				desc.Contains = append(desc.Contains, dep)
			}
		}
		sort.Strings(desc.Contains)
		out = append(out, desc)
	}

	sort.Slice(out, func(i, j int) bool {
		if li, lj := out[i].Kind.Layer(), out[j].Kind.Layer(); li != lj {
			return li > lj
		}
		return out[i].PhysicalName < out[j].PhysicalName
	})
	return out
}
