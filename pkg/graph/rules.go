package graph

import (
	"fmt"
	"sort"
	"unicode"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// ValidateName rejects names that cannot be stored as graph keys: empty
// names, names with control characters and names that libinjection
// fingerprints as SQL injection. Names are otherwise kept exactly as given.
func ValidateName(role, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s name is empty", apperrors.ErrInvalidName, role)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %s name %q contains control characters", apperrors.ErrInvalidName, role, name)
		}
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("%w: %s name %q looks like SQL injection (fingerprint %s)",
			apperrors.ErrInvalidName, role, name, string(fingerprint))
	}
	return nil
}

// permittedChildren lists the child kinds each parent kind may contain.
var permittedChildren = map[models.ObjectKind][]models.ObjectKind{
	models.KindView:    {models.KindTable, models.KindView},
	models.KindDataset: {models.KindView, models.KindTable},
}

// ValidateContainment checks that parent -> child is a permitted pair.
func ValidateContainment(parent, child models.ObjectKind) error {
	for _, k := range permittedChildren[parent] {
		if k == child {
			return nil
		}
	}
	return fmt.Errorf("%w: %s cannot contain %s", apperrors.ErrInvalidContainment, parent, child)
}

// OwnerKinds are the kinds that may own fields, in resolution order.
var OwnerKinds = []models.ObjectKind{models.KindTable, models.KindView}

// ChildKinds are the kinds a containment child may have, in resolution order.
var ChildKinds = []models.ObjectKind{models.KindTable, models.KindView}

// ResolveOwner picks the object a field attaches to among same-named
// candidates. A Table wins over a View; datasets never own fields.
func ResolveOwner(candidates []*models.SchemaObject) *models.SchemaObject {
	return pickByPrecedence(candidates, OwnerKinds)
}

// ResolveChild picks the containment child among same-named candidates.
func ResolveChild(candidates []*models.SchemaObject) *models.SchemaObject {
	return pickByPrecedence(candidates, ChildKinds)
}

func pickByPrecedence(candidates []*models.SchemaObject, order []models.ObjectKind) *models.SchemaObject {
	for _, kind := range order {
		for _, c := range candidates {
			if c != nil && c.Kind == kind {
				return c
			}
		}
	}
	return nil
}

// KindsFor returns the kinds to search for ref: its own kind when set,
// otherwise the fallback order.
func KindsFor(ref models.ObjectRef, fallback []models.ObjectKind) []models.ObjectKind {
	if ref.Kind != "" {
		return []models.ObjectKind{ref.Kind}
	}
	return fallback
}

// CheckImportObject validates the inputs of ImportSchemaObject.
func CheckImportObject(kind models.ObjectKind, physicalName string) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", apperrors.ErrInvalidName, kind)
	}
	return ValidateName(string(kind), physicalName)
}

// CheckImportField validates the inputs of ImportField.
func CheckImportField(owner models.ObjectRef, physicalName string) error {
	if owner.Kind != "" && !owner.Kind.CanOwnFields() {
		return &apperrors.GraphIntegrityError{
			Operation:   "import_field",
			Role:        "owner",
			MissingName: owner.PhysicalName,
			Reason:      fmt.Sprintf("a %s cannot own fields", owner.Kind),
		}
	}
	if err := ValidateName("owner", owner.PhysicalName); err != nil {
		return err
	}
	return ValidateName("field", physicalName)
}

// CheckCreateEdge validates the inputs of CreateContainmentEdge that can be
// checked before the endpoints are resolved.
func CheckCreateEdge(parent, child models.ObjectRef) error {
	if parent.Kind == "" {
		return fmt.Errorf("%w: parent kind is required", apperrors.ErrInvalidContainment)
	}
	if _, ok := permittedChildren[parent.Kind]; !ok {
		return fmt.Errorf("%w: %s cannot contain other objects", apperrors.ErrInvalidContainment, parent.Kind)
	}
	if err := ValidateName("parent", parent.PhysicalName); err != nil {
		return err
	}
	return ValidateName("child", child.PhysicalName)
}

// SortObjects orders objects by kind layer, then physical name.
func SortObjects(objs []*models.SchemaObject) {
	sort.SliceStable(objs, func(i, j int) bool {
		if objs[i].Kind.Layer() != objs[j].Kind.Layer() {
			return objs[i].Kind.Layer() < objs[j].Kind.Layer()
		}
		return objs[i].PhysicalName < objs[j].PhysicalName
	})
}

// SortFields orders fields by owner name, owner kind, then physical name.
func SortFields(fields []*models.FieldDescriptor) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		if a.OwningPhysicalName != b.OwningPhysicalName {
			return a.OwningPhysicalName < b.OwningPhysicalName
		}
		if a.OwnerKind != b.OwnerKind {
			return a.OwnerKind < b.OwnerKind
		}
		return a.PhysicalName < b.PhysicalName
	})
}

// SortEdges orders edges by parent then child reference.
func SortEdges(edges []*models.ContainmentEdge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Parent.PhysicalName != b.Parent.PhysicalName {
			return a.Parent.PhysicalName < b.Parent.PhysicalName
		}
		if a.Parent.Kind != b.Parent.Kind {
			return a.Parent.Kind < b.Parent.Kind
		}
		if a.Child.PhysicalName != b.Child.PhysicalName {
			return a.Child.PhysicalName < b.Child.PhysicalName
		}
		return a.Child.Kind < b.Child.Kind
	})
}
