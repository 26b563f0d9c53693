// Package graphtest holds the behaviour every graph.Store backend must share.
package graphtest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) graph.Store

// RunStoreSuite runs the shared store behaviour against a backend.
func RunStoreSuite(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s graph.Store)
	}{
		{"ImportObjectIsIdempotent", testImportObjectIsIdempotent},
		{"ImportObjectRejectsBadNames", testImportObjectRejectsBadNames},
		{"SameNameAcrossKinds", testSameNameAcrossKinds},
		{"FieldOwnerMissingThenPresent", testFieldOwnerMissingThenPresent},
		{"FieldImportIsIdempotent", testFieldImportIsIdempotent},
		{"FieldOwnerPrecedence", testFieldOwnerPrecedence},
		{"FieldOnDatasetRejected", testFieldOnDatasetRejected},
		{"EdgeMissingEndpoint", testEdgeMissingEndpoint},
		{"EdgeKindRules", testEdgeKindRules},
		{"EdgeIsIdempotent", testEdgeIsIdempotent},
		{"FindByName", testFindByName},
		{"TraverseOneHop", testTraverseOneHop},
		{"TraverseUnknownID", testTraverseUnknownID},
		{"Snapshot", testSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

func mustObject(t *testing.T, s graph.Store, kind models.ObjectKind, name, logical string) *models.SchemaObject {
	t.Helper()
	o, err := s.ImportSchemaObject(context.Background(), kind, name, logical)
	require.NoError(t, err)
	return o
}

func mustField(t *testing.T, s graph.Store, owner models.ObjectRef, name, logical string) *models.FieldDescriptor {
	t.Helper()
	f, err := s.ImportField(context.Background(), owner, name, logical)
	require.NoError(t, err)
	return f
}

func mustEdge(t *testing.T, s graph.Store, parent, child models.ObjectRef) {
	t.Helper()
	_, err := s.CreateContainmentEdge(context.Background(), parent, child)
	require.NoError(t, err)
}

func ref(kind models.ObjectKind, name string) models.ObjectRef {
	return models.ObjectRef{Kind: kind, PhysicalName: name}
}

func names(entities []models.GraphEntity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Relation+":"+e.Name())
	}
	return out
}

func testImportObjectIsIdempotent(t *testing.T, s graph.Store) {
	first := mustObject(t, s, models.KindTable, "employees", "Employees")
	again := mustObject(t, s, models.KindTable, "employees", "")
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Employees", again.LogicalName, "an empty logical name keeps the stored one")

	refreshed := mustObject(t, s, models.KindTable, "employees", "Staff")
	assert.Equal(t, first.ID, refreshed.ID)
	assert.Equal(t, "Staff", refreshed.LogicalName)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Objects, 1)
}

func testImportObjectRejectsBadNames(t *testing.T, s graph.Store) {
	ctx := context.Background()

	_, err := s.ImportSchemaObject(ctx, models.KindTable, "", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidName)

	_, err = s.ImportSchemaObject(ctx, models.KindTable, "' OR '1'='1", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidName)

	_, err = s.ImportSchemaObject(ctx, models.ObjectKind("index"), "idx", "")
	assert.Error(t, err)

	// Whitespace is significant and kept.
	o, err := s.ImportSchemaObject(ctx, models.KindTable, " padded ", "")
	require.NoError(t, err)
	assert.Equal(t, " padded ", o.PhysicalName)
}

func testSameNameAcrossKinds(t *testing.T, s graph.Store) {
	table := mustObject(t, s, models.KindTable, "sales", "")
	view := mustObject(t, s, models.KindView, "sales", "")
	assert.NotEqual(t, table.ID, view.ID)
}

func testFieldOwnerMissingThenPresent(t *testing.T, s graph.Store) {
	ctx := context.Background()

	_, err := s.ImportField(ctx, ref("", "employees"), "emp_id", "Employee ID")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGraphIntegrity)
	var gie *apperrors.GraphIntegrityError
	require.True(t, errors.As(err, &gie))
	assert.Equal(t, "owner", gie.Role)
	assert.Contains(t, gie.MissingName, "employees")

	mustObject(t, s, models.KindTable, "employees", "")
	f, err := s.ImportField(ctx, ref("", "employees"), "emp_id", "Employee ID")
	require.NoError(t, err)
	assert.Equal(t, "employees", f.OwningPhysicalName)
	assert.Equal(t, models.KindTable, f.OwnerKind)
}

func testFieldImportIsIdempotent(t *testing.T, s graph.Store) {
	mustObject(t, s, models.KindTable, "employees", "")
	first := mustField(t, s, ref(models.KindTable, "employees"), "name", "")
	again := mustField(t, s, ref(models.KindTable, "employees"), "name", "Full Name")
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Full Name", again.LogicalName)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Fields, 1)
}

func testFieldOwnerPrecedence(t *testing.T, s graph.Store) {
	mustObject(t, s, models.KindView, "orders", "")
	table := mustObject(t, s, models.KindTable, "orders", "")

	f := mustField(t, s, ref("", "orders"), "order_id", "")
	assert.Equal(t, table.ID, f.OwnerID)

	v := mustField(t, s, ref(models.KindView, "orders"), "order_id", "")
	assert.Equal(t, models.KindView, v.OwnerKind)
	assert.NotEqual(t, f.ID, v.ID)
}

func testFieldOnDatasetRejected(t *testing.T, s graph.Store) {
	mustObject(t, s, models.KindDataset, "finance", "")

	_, err := s.ImportField(context.Background(), ref(models.KindDataset, "finance"), "total", "")
	assert.ErrorIs(t, err, apperrors.ErrGraphIntegrity)

	// A dataset alone never resolves as an owner.
	_, err = s.ImportField(context.Background(), ref("", "finance"), "total", "")
	assert.ErrorIs(t, err, apperrors.ErrGraphIntegrity)
}

func testEdgeMissingEndpoint(t *testing.T, s graph.Store) {
	ctx := context.Background()
	mustObject(t, s, models.KindView, "v_staff", "")

	_, err := s.CreateContainmentEdge(ctx, ref(models.KindView, "v_staff"), ref("", "employees"))
	var gie *apperrors.GraphIntegrityError
	require.True(t, errors.As(err, &gie))
	assert.Equal(t, "child", gie.Role)
	assert.Contains(t, gie.MissingName, "employees")

	_, err = s.CreateContainmentEdge(ctx, ref(models.KindDataset, "hr"), ref("", "v_staff"))
	require.True(t, errors.As(err, &gie))
	assert.Equal(t, "parent", gie.Role)
	assert.Contains(t, gie.MissingName, "hr")
}

func testEdgeKindRules(t *testing.T, s graph.Store) {
	ctx := context.Background()
	mustObject(t, s, models.KindTable, "employees", "")
	mustObject(t, s, models.KindView, "v_staff", "")
	mustObject(t, s, models.KindDataset, "hr", "")

	_, err := s.CreateContainmentEdge(ctx, ref(models.KindTable, "employees"), ref(models.KindView, "v_staff"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidContainment)

	_, err = s.CreateContainmentEdge(ctx, ref(models.KindView, "v_staff"), ref(models.KindDataset, "hr"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidContainment)

	mustEdge(t, s, ref(models.KindDataset, "hr"), ref("", "v_staff"))
	mustEdge(t, s, ref(models.KindDataset, "hr"), ref("", "employees"))
	mustEdge(t, s, ref(models.KindView, "v_staff"), ref(models.KindTable, "employees"))
}

func testEdgeIsIdempotent(t *testing.T, s graph.Store) {
	mustObject(t, s, models.KindTable, "employees", "")
	mustObject(t, s, models.KindView, "v_staff", "")

	mustEdge(t, s, ref(models.KindView, "v_staff"), ref("", "employees"))
	mustEdge(t, s, ref(models.KindView, "v_staff"), ref("", "employees"))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, ref(models.KindView, "v_staff"), snap.Edges[0].Parent)
	assert.Equal(t, ref(models.KindTable, "employees"), snap.Edges[0].Child)
}

func testFindByName(t *testing.T, s graph.Store) {
	ctx := context.Background()
	mustObject(t, s, models.KindTable, "employees", "Employee Master")
	mustObject(t, s, models.KindView, "employees", "")
	mustObject(t, s, models.KindTable, "departments", "")
	mustField(t, s, ref(models.KindTable, "departments"), "employees", "")

	got, err := s.FindByName(ctx, "employees")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.KindView, got[0].Object.Kind, "views sort before tables")
	assert.Equal(t, models.KindTable, got[1].Object.Kind)
	assert.Equal(t, models.EntityField, got[2].Type)
	assert.Equal(t, "departments", got[2].Field.OwningPhysicalName)

	byLogical, err := s.FindByName(ctx, "Employee Master")
	require.NoError(t, err)
	require.Len(t, byLogical, 1)
	assert.Equal(t, "employees", byLogical[0].Object.PhysicalName)

	none, err := s.FindByName(ctx, "Employees")
	require.NoError(t, err)
	assert.Empty(t, none, "matching is case-sensitive")

	none, err = s.FindByName(ctx, "employees ")
	require.NoError(t, err)
	assert.Empty(t, none, "matching is whitespace-sensitive")
}

func testTraverseOneHop(t *testing.T, s graph.Store) {
	ctx := context.Background()
	employees := mustObject(t, s, models.KindTable, "employees", "")
	view := mustObject(t, s, models.KindView, "v_staff", "")
	mustObject(t, s, models.KindDataset, "hr", "")
	name := mustField(t, s, ref(models.KindTable, "employees"), "name", "")
	mustField(t, s, ref(models.KindTable, "employees"), "emp_id", "")
	mustEdge(t, s, ref(models.KindView, "v_staff"), ref("", "employees"))
	mustEdge(t, s, ref(models.KindDataset, "hr"), ref("", "v_staff"))

	out, err := s.TraverseOneHop(ctx, employees.ID, models.DirectionOutgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"field:emp_id", "field:name"}, names(out))

	in, err := s.TraverseOneHop(ctx, employees.ID, models.DirectionIncoming)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent:v_staff"}, names(in))

	both, err := s.TraverseOneHop(ctx, view.ID, models.DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, []string{"child:employees", "parent:hr"}, names(both))

	owner, err := s.TraverseOneHop(ctx, name.ID, models.DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner:employees"}, names(owner))

	fieldOut, err := s.TraverseOneHop(ctx, name.ID, models.DirectionOutgoing)
	require.NoError(t, err)
	assert.Empty(t, fieldOut)
}

func testTraverseUnknownID(t *testing.T, s graph.Store) {
	_, err := s.TraverseOneHop(context.Background(), uuid.New(), models.DirectionBoth)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testSnapshot(t *testing.T, s graph.Store) {
	ctx := context.Background()

	empty, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	mustObject(t, s, models.KindTable, "b_table", "")
	mustObject(t, s, models.KindTable, "a_table", "")
	mustObject(t, s, models.KindDataset, "z_dataset", "")
	mustField(t, s, ref(models.KindTable, "b_table"), "y", "")
	mustField(t, s, ref(models.KindTable, "a_table"), "x", "")
	mustEdge(t, s, ref(models.KindDataset, "z_dataset"), ref("", "b_table"))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Objects, 3)
	assert.Equal(t, "z_dataset", snap.Objects[0].PhysicalName)
	assert.Equal(t, "a_table", snap.Objects[1].PhysicalName)
	assert.Equal(t, "b_table", snap.Objects[2].PhysicalName)
	require.Len(t, snap.Fields, 2)
	assert.Equal(t, "a_table", snap.Fields[0].OwningPhysicalName)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, "z_dataset", snap.Edges[0].Parent.PhysicalName)
}
