package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/graph/memory"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

func hrDescriptors() []models.SchemaDescriptor {
	return []models.SchemaDescriptor{
		{
			Kind:         models.KindDataset,
			PhysicalName: "hr",
			LogicalName:  "Human Resources",
			Contains:     []string{"v_staff"},
		},
		{
			Kind:         models.KindView,
			PhysicalName: "v_staff",
			Contains:     []string{"employees"},
		},
		{
			Kind:         models.KindTable,
			PhysicalName: "employees",
			LogicalName:  "Employees",
			Fields: []models.FieldSpec{
				{PhysicalName: "id", LogicalName: "Employee ID"},
				{PhysicalName: "name"},
			},
		},
	}
}

func TestImport_LinksAfterAllItems(t *testing.T) {
	store := memory.New()
	svc := NewSchemaImportService(store, zap.NewNop())

	report, err := svc.Import(context.Background(), hrDescriptors())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, models.LinkingStatusOK, report.Linking.Status)
	assert.Equal(t, 2, report.Linking.EdgesCreated)
	assert.True(t, report.OK())

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Objects, 3)
	assert.Len(t, snap.Fields, 2)
	assert.Len(t, snap.Edges, 2)
}

func TestImport_IsIdempotent(t *testing.T) {
	store := memory.New()
	svc := NewSchemaImportService(store, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Import(ctx, hrDescriptors())
	require.NoError(t, err)

	again := hrDescriptors()
	again[2].LogicalName = "Staff Members"
	again[2].Fields[0].LogicalName = ""
	report, err := svc.Import(ctx, again)
	require.NoError(t, err)
	assert.True(t, report.OK())

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Objects, 3)
	assert.Len(t, snap.Fields, 2)
	assert.Len(t, snap.Edges, 2)

	found, err := store.FindByName(ctx, "employees")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Staff Members", found[0].Object.LogicalName)

	fields, err := store.FindByName(ctx, "id")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "Employee ID", fields[0].Field.LogicalName, "an empty logical name keeps the stored one")
}

func TestImport_ItemFailuresAreReported(t *testing.T) {
	svc := NewSchemaImportService(memory.New(), zap.NewNop())

	report, err := svc.Import(context.Background(), []models.SchemaDescriptor{
		{Kind: "procedure", PhysicalName: "p_calc"},
		{Kind: models.KindTable, PhysicalName: ""},
		{
			Kind:         models.KindTable,
			PhysicalName: "orders",
			Fields: []models.FieldSpec{
				{PhysicalName: "id"},
				{PhysicalName: "bad\x00name"},
			},
		},
		{Kind: models.KindDataset, PhysicalName: "sales", Fields: []models.FieldSpec{{PhysicalName: "x"}}},
	})
	require.NoError(t, err)
	require.Len(t, report.Items, 4)

	assert.False(t, report.Items[0].Success)
	assert.Contains(t, report.Items[0].Error, "unknown object kind")

	assert.False(t, report.Items[1].Success)

	orders := report.Items[2]
	assert.False(t, orders.Success)
	assert.Equal(t, "one or more fields were rejected", orders.Error)
	require.Len(t, orders.Fields, 2)
	assert.True(t, orders.Fields[0].Success)
	assert.False(t, orders.Fields[1].Success)

	assert.False(t, report.Items[3].Success, "datasets cannot own fields")

	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 4, report.Failed)
	assert.Equal(t, models.LinkingStatusSkipped, report.Linking.Status)
	assert.False(t, report.OK())
}

func TestImport_LinkingStatuses(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []models.SchemaDescriptor
		status      string
		created     int
		missing     []string
	}{
		{
			name: "partial",
			descriptors: []models.SchemaDescriptor{
				{Kind: models.KindDataset, PhysicalName: "hr", Contains: []string{"employees", "payroll"}},
				{Kind: models.KindTable, PhysicalName: "employees"},
			},
			status:  models.LinkingStatusPartial,
			created: 1,
			missing: []string{"payroll"},
		},
		{
			name: "failed",
			descriptors: []models.SchemaDescriptor{
				{Kind: models.KindView, PhysicalName: "v_orders", Contains: []string{"orders"}},
			},
			status:  models.LinkingStatusFailed,
			created: 0,
			missing: []string{"orders"},
		},
		{
			name: "table cannot contain",
			descriptors: []models.SchemaDescriptor{
				{Kind: models.KindTable, PhysicalName: "orders", Contains: []string{"lines"}},
				{Kind: models.KindTable, PhysicalName: "lines"},
			},
			status:  models.LinkingStatusFailed,
			created: 0,
			missing: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSchemaImportService(memory.New(), zap.NewNop())
			report, err := svc.Import(context.Background(), tt.descriptors)
			require.NoError(t, err)

			assert.Equal(t, tt.status, report.Linking.Status)
			assert.Equal(t, tt.created, report.Linking.EdgesCreated)
			require.Len(t, report.Linking.Failures, len(tt.missing))
			for i, name := range tt.missing {
				assert.Equal(t, name, report.Linking.Failures[i].MissingName)
			}
		})
	}
}

func TestImport_UnavailableStoreAborts(t *testing.T) {
	store := memory.New()
	store.Unavailable = true
	svc := NewSchemaImportService(store, zap.NewNop())

	report, err := svc.Import(context.Background(), hrDescriptors())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, apperrors.ErrGraphUnavailable)
}

func TestImport_EmptyRequest(t *testing.T) {
	svc := NewSchemaImportService(memory.New(), zap.NewNop())
	_, err := svc.Import(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestImportFromSource(t *testing.T) {
	schemasource.Register(schemasource.Registration{
		Info: schemasource.SourceInfo{Type: "services-test-source", DisplayName: "Test"},
		Factory: func(ctx context.Context, cfg map[string]any, logger *zap.Logger) (schemasource.Discoverer, error) {
			return &staticSource{descriptors: hrDescriptors()}, nil
		},
	})

	store := memory.New()
	svc := NewSchemaImportService(store, zap.NewNop())

	report, err := svc.ImportFromSource(context.Background(), "services-test-source", nil)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 3, report.Succeeded)

	_, err = svc.ImportFromSource(context.Background(), "oracle", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedSourceType)
}

type staticSource struct {
	descriptors []models.SchemaDescriptor
}

func (s *staticSource) Discover(ctx context.Context) ([]models.SchemaDescriptor, error) {
	return s.descriptors, nil
}

func (s *staticSource) Close() error { return nil }

func TestDecodeDescriptors(t *testing.T) {
	yamlDoc := `
objects:
  - kind: dataset
    physical_name: hr
    contains: [employees]
  - kind: table
    physical_name: employees
    logical_name: Employees
    fields:
      - physical_name: id
        logical_name: Employee ID
`
	got, err := DecodeDescriptors([]byte(yamlDoc))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.KindDataset, got[0].Kind)
	assert.Equal(t, []string{"employees"}, got[0].Contains)
	assert.Equal(t, "Employee ID", got[1].Fields[0].LogicalName)

	jsonDoc := `[{"kind":"view","physical_name":"v_staff","contains":["employees"]}]`
	got, err = DecodeDescriptors([]byte(jsonDoc))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.KindView, got[0].Kind)

	_, err = DecodeDescriptors([]byte("[]"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)

	_, err = DecodeDescriptors([]byte("kind: [unclosed"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestLoadDescriptorsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- kind: table\n  physical_name: orders\n"), 0o600))

	got, err := LoadDescriptorsFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "orders", got[0].PhysicalName)

	_, err = LoadDescriptorsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
