package config

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migration source
)

const (
	postgresImage = "postgres:16-alpine"

	// The postgres image logs readiness twice (initdb restart), so waiting
	// for the first occurrence races against the restart.
	readyLogOccurrences = 2
	containerStartup    = 120 * time.Second
)

// TestDatabase bundles the container and connection an integration test needs
// to clean up.
type TestDatabase struct {
	Container  *postgres.PostgresContainer
	Connection *sql.DB
}

// SetupTestDatabase starts a disposable PostgreSQL container, applies all
// migrations, and returns an open connection to it. Integration tests across
// packages share this helper so they all run against the real schema.
//
//	func TestMyFeature(t *testing.T) {
//		if testing.Short() {
//			t.Skip("skipping integration test in short mode")
//		}
//		ctx := context.Background()
//		testDB := config.SetupTestDatabase(ctx, t)
//		t.Cleanup(func() {
//			_ = testDB.Connection.Close()
//			_ = testcontainers.TerminateContainer(testDB.Container)
//		})
//		// ...
//	}
//
// Cleanup is the caller's responsibility via t.Cleanup.
func SetupTestDatabase(ctx context.Context, t *testing.T) *TestDatabase {
	t.Helper()

	container, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("eventflow_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(readyLogOccurrences).
				WithStartupTimeout(containerStartup),
		),
	)
	require.NoError(t, err, "start postgres container")
	require.NotNil(t, container, "postgres container is nil")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "container connection string")

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "open database")

	if err := RunTestMigrations(conn); err != nil {
		_ = conn.Close()
		_ = testcontainers.TerminateContainer(container)

		t.Fatalf("run migrations: %v", err)
	}

	return &TestDatabase{
		Container:  container,
		Connection: conn,
	}
}

// RunTestMigrations applies every migration in cmd/migrator to db. Pointing
// the file:// source at the migrator's own embedded sources keeps the test
// schema and the deployed schema from drifting apart.
//
// The path is relative to the calling package and assumes the caller sits two
// levels below the project root (internal/storage, internal/api, ...), which
// holds for every package with integration tests.
func RunTestMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../cmd/migrator",
		"postgres",
		driver,
	)
	if err != nil {
		return err
	}

	// ErrNoChange means the schema is already current, which is fine.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
