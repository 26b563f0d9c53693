package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/adapters/schemasource"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

func createTestDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hr.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE departments (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE employees (id INTEGER PRIMARY KEY, name TEXT, dept_id INTEGER)`,
		`CREATE VIEW IF NOT EXISTS v_staff AS
			SELECT e.id, e.name, d.name AS dept
			FROM employees e JOIN "departments" d ON d.id = e.dept_id`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func TestSource_Discover(t *testing.T) {
	path := createTestDatabase(t)

	src, err := NewSource(context.Background(), &Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	descs, err := src.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 3)

	assert.Equal(t, "departments", descs[0].PhysicalName)
	assert.Equal(t, "employees", descs[1].PhysicalName)
	assert.Equal(t, []models.FieldSpec{
		{PhysicalName: "id"}, {PhysicalName: "name"}, {PhysicalName: "dept_id"},
	}, descs[1].Fields)

	view := descs[2]
	assert.Equal(t, models.KindView, view.Kind)
	assert.Equal(t, "v_staff", view.PhysicalName)
	assert.Equal(t, []string{"departments", "employees"}, view.Contains)
	assert.Len(t, view.Fields, 3)
}

func TestSource_OpenThroughRegistry(t *testing.T) {
	path := createTestDatabase(t)

	d, err := schemasource.Open(context.Background(), "sqlite", map[string]any{"path": path}, zap.NewNop())
	require.NoError(t, err)
	defer d.Close()

	descs, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, descs, 3)
}

func TestFromMap_RequiresPath(t *testing.T) {
	_, err := FromMap(map[string]any{})
	assert.ErrorContains(t, err, "path is required")
}

func TestViewSelect(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t", ViewSelect("CREATE VIEW IF NOT EXISTS v AS SELECT * FROM t"))
	assert.Equal(t, "SELECT 1", ViewSelect("create temp view v(a) as SELECT 1"))
	assert.Equal(t, "SELECT 1", ViewSelect("SELECT 1"))
}
