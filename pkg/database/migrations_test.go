//go:build integration

package database_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/database"
	"github.com/ekaya-inc/schema-graph/pkg/testhelpers"
)

// createScratchDatabase creates a throwaway database and a new user and
// returns a database/sql handle connected as that user.
func createScratchDatabase(t *testing.T, name, user string, grantSchema bool) *sql.DB {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	_, _ = testDB.Pool.Exec(ctx, "DROP DATABASE IF EXISTS "+name)
	_, _ = testDB.Pool.Exec(ctx, "DROP USER IF EXISTS "+user)

	_, err := testDB.Pool.Exec(ctx, "CREATE DATABASE "+name)
	require.NoError(t, err)
	_, err = testDB.Pool.Exec(ctx, "CREATE USER "+user+" WITH PASSWORD 'test_password'")
	require.NoError(t, err)
	_, err = testDB.Pool.Exec(ctx, "GRANT CONNECT ON DATABASE "+name+" TO "+user)
	require.NoError(t, err)

	connStr := testDB.ConnStrFor(user, "test_password", name)
	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)

	if grantSchema {
		adminDB, err := sql.Open("pgx", testDB.ConnStrFor(testhelpers.TestDBUser, testhelpers.TestDBPassword, name))
		require.NoError(t, err)
		_, err = adminDB.Exec("GRANT ALL ON SCHEMA public TO " + user)
		adminDB.Close()
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		db.Close()
		_, _ = testDB.Pool.Exec(ctx, `
			SELECT pg_terminate_backend(pid) FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()`, name)
		time.Sleep(100 * time.Millisecond)
		_, _ = testDB.Pool.Exec(ctx, "DROP DATABASE IF EXISTS "+name)
		_, _ = testDB.Pool.Exec(ctx, "DROP USER IF EXISTS "+user)
	})

	return db
}

func Test_Migrations_CreateGraphTables(t *testing.T) {
	db := createScratchDatabase(t, "test_migration_success", "full_perms_user", true)

	require.NoError(t, database.RunMigrations(db, zap.NewNop()))
	// Second run is a no-op.
	require.NoError(t, database.RunMigrations(db, zap.NewNop()))

	for _, table := range []string{"schema_objects", "schema_fields", "schema_containment", "chat_turns", "token_usage_records"} {
		var exists bool
		err := db.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s should exist after migrations", table)
	}
}

func Test_Migrations_UniquePhysicalNamePerKind(t *testing.T) {
	db := createScratchDatabase(t, "test_migration_unique", "unique_perms_user", true)
	require.NoError(t, database.RunMigrations(db, zap.NewNop()))

	_, err := db.Exec(`INSERT INTO schema_objects (id, kind, physical_name) VALUES (gen_random_uuid(), 'table', 'employees')`)
	require.NoError(t, err)
	// Same name, different kind is allowed.
	_, err = db.Exec(`INSERT INTO schema_objects (id, kind, physical_name) VALUES (gen_random_uuid(), 'view', 'employees')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO schema_objects (id, kind, physical_name) VALUES (gen_random_uuid(), 'table', 'employees')`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_objects_kind_name_key")
}

// Test_Migrations_InsufficientPermissions verifies that migrations fail fast
// with a permission error rather than hanging.
func Test_Migrations_InsufficientPermissions(t *testing.T) {
	db := createScratchDatabase(t, "test_migration_perms", "restricted_user", false)

	require.NoError(t, db.Ping())

	// PostgreSQL 15+ no longer grants CREATE on public to everyone.
	_, err := db.Exec("CREATE TABLE test_table (id int)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	done := make(chan error, 1)
	go func() {
		done <- database.RunMigrations(db, zap.NewNop())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
	case <-time.After(30 * time.Second):
		t.Fatal("migrations hung instead of failing with a permission error")
	}
}
