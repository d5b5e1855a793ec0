package postgres

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// journalSchemaGlob points at the embedded schema; the migrations package
// imports this one and cannot be used from its tests.
const journalSchemaGlob = "../migrations/postgres/*.sql"

// newJournalPool starts a disposable PostgreSQL, applies the journal schema
// and returns a pool that is closed with the test.
func newJournalPool(t *testing.T) *Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("journal store tests need docker")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("workbench"),
		tcpostgres.WithUsername("workbench"),
		tcpostgres.WithPassword("workbench"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "start postgres")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "connect postgres")
	t.Cleanup(pool.Close)

	schema, err := filepath.Glob(journalSchemaGlob)
	require.NoError(t, err)
	require.NotEmpty(t, schema, "no journal schema files")
	for _, path := range schema {
		sql, err := os.ReadFile(path)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "apply %s", filepath.Base(path))
	}
	return pool
}
