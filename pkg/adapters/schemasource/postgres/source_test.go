//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/models"
	"github.com/ekaya-inc/schema-graph/pkg/testhelpers"
)

func TestSource_Discover(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, stmt := range []string{
		`DROP SCHEMA IF EXISTS discover_test CASCADE`,
		`CREATE SCHEMA discover_test`,
		`CREATE TABLE discover_test.employees (id int PRIMARY KEY, name text)`,
		`COMMENT ON TABLE discover_test.employees IS 'Employees'`,
		`COMMENT ON COLUMN discover_test.employees.id IS 'Employee ID'`,
		`CREATE TABLE discover_test.departments (id int PRIMARY KEY)`,
		`CREATE VIEW discover_test.v_staff AS
			SELECT e.id, e.name FROM discover_test.employees e
			JOIN discover_test.departments d ON d.id = e.id`,
	} {
		_, err := testDB.Pool.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	t.Cleanup(func() {
		_, _ = testDB.Pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS discover_test CASCADE`)
	})

	src := NewSourceWithPool(testDB.Pool, "discover_test", zap.NewNop())

	descs, err := src.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, descs, 3)

	assert.Equal(t, "departments", descs[0].PhysicalName)
	assert.Equal(t, "employees", descs[1].PhysicalName)
	assert.Equal(t, "Employees", descs[1].LogicalName)
	assert.Equal(t, []models.FieldSpec{
		{PhysicalName: "id", LogicalName: "Employee ID"},
		{PhysicalName: "name"},
	}, descs[1].Fields)

	assert.Equal(t, models.KindView, descs[2].Kind)
	assert.Equal(t, []string{"departments", "employees"}, descs[2].Contains)
}

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{"host": "db", "user": "u", "database": "hr", "port": float64(6543)})
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "public", cfg.Schema)
	assert.Equal(t, "require", cfg.SSLMode)

	_, err = FromMap(map[string]any{"host": "db"})
	assert.ErrorContains(t, err, "user is required")
}
