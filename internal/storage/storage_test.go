package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlorc/core/internal/storage"
	"github.com/sqlorc/core/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func TestPingAndPool(t *testing.T) {
	require.NoError(t, testDB.Ping(context.Background()))
	require.NotNil(t, testDB.Pool())
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	// Migrations already ran once in TestMain; running again must be a no-op,
	// not an error, since RunMigrations tracks applied versions.
	require.NoError(t, testDB.RunMigrations(context.Background(), os.DirFS("../../migrations")))
}

func TestMigrationsCreateExpectedTables(t *testing.T) {
	for _, table := range []string{"threads", "messages", "token_usage", "used_databases", "schema_table_embeddings"} {
		var exists bool
		err := testDB.Pool().QueryRow(context.Background(),
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&exists)
		require.NoError(t, err)
		require.Truef(t, exists, "expected migrations to create table %q", table)
	}
}
