package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	clickhouseImage    = "clickhouse/clickhouse-server:24.1-alpine"
	observationSchemas = "../migrations/clickhouse/*.sql"
)

// newObservationConn starts a disposable ClickHouse with the status
// observation table and returns a connection closed with the test.
func newObservationConn(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("observation store tests need docker")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        clickhouseImage,
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_DB": "workbench"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("9000/tcp"),
				wait.ForLog("Ready for connections").WithStartupTimeout(time.Minute),
			),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "clickhouse")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("%s/workbench", endpoint))
	require.NoError(t, err, "connect clickhouse")
	t.Cleanup(func() { _ = conn.Close() })

	schema, err := filepath.Glob(observationSchemas)
	require.NoError(t, err)
	require.NotEmpty(t, schema, "no observation schema files")
	for _, path := range schema {
		sql, err := os.ReadFile(path)
		require.NoError(t, err)
		// Schema files hold one statement each.
		stmt := strings.TrimSuffix(strings.TrimSpace(string(sql)), ";")
		require.NoError(t, conn.Exec(ctx, stmt), "apply %s", filepath.Base(path))
	}
	return conn
}
