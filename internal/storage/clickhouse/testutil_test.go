package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schemaDir holds the DDL applied in production by the migrations package,
// which imports this package and so cannot be used here.
var schemaDir = filepath.Join("..", "migrations", "clickhouse")

// setupTestDB starts a ClickHouse container with the schema applied.
// The returned cleanup must be called after the test.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"CLICKHOUSE_DB":   "screener",
				"CLICKHOUSE_USER": "default",
			},
			WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start clickhouse container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://default:@%s:%s/screener", host, port.Port())
	conn, err := NewConn(ctx, dsn, WithMaxOpenConns(4))
	require.NoError(t, err, "connect clickhouse")

	applySchema(t, ctx, conn)

	return conn, func() {
		conn.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
}

// applySchema runs each statement of the schema files; the native protocol
// accepts one statement per Exec.
func applySchema(t *testing.T, ctx context.Context, conn *Conn) {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(schemaDir, "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no schema files in %s", schemaDir)
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err, "read %s", f)

		var body []string
		for _, line := range strings.Split(string(data), "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				body = append(body, line)
			}
		}
		for _, stmt := range strings.Split(strings.Join(body, "\n"), ";") {
			if stmt = strings.TrimSpace(stmt); stmt != "" {
				require.NoError(t, conn.Exec(ctx, stmt), "apply %s", filepath.Base(f))
			}
		}
	}
}
