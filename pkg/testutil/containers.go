// Package testutil starts throwaway PostgreSQL and Redis containers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/bellflower/pkg/database"
	"github.com/Ramsey-B/bellflower/pkg/redis"
)

// IntegrationEnv must be "1" for container-backed tests to run.
const IntegrationEnv = "BELLFLOWER_INTEGRATION"

const (
	postgresUser     = "bellflower"
	postgresPassword = "bellflower"
	postgresDB       = "bellflower"
)

// SkipUnlessIntegration skips t when integration tests are not enabled.
func SkipUnlessIntegration(t testing.TB) {
	t.Helper()
	if os.Getenv(IntegrationEnv) != "1" {
		t.Skipf("set %s=1 to run integration tests", IntegrationEnv)
	}
}

func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// MigrationFolder is the absolute path of db/pg, independent of the test's working directory.
func MigrationFolder() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}

type Postgres struct {
	SQL *sqlx.DB
	DB  database.DB
}

// StartPostgres runs a migrated PostgreSQL container for the lifetime of t.
func StartPostgres(t testing.TB) *Postgres {
	t.Helper()
	SkipUnlessIntegration(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start PostgreSQL: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host := containerHost(t, ctx, container)
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get mapped PostgreSQL port: %v", err)
	}
	logger := Logger()

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:         host,
		Port:         mapped.Port(),
		User:         postgresUser,
		Password:     postgresPassword,
		Name:         postgresDB,
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}, logger)
	if err != nil {
		t.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: MigrationFolder()})
	if err := migrations.MigratePostgres(db.DB, postgresDB); err != nil {
		t.Fatalf("failed to migrate PostgreSQL: %v", err)
	}

	return &Postgres{SQL: db, DB: database.NewDatabaseInstance(db, logger)}
}

// StartRedis runs a Redis container for the lifetime of t.
func StartRedis(t testing.TB) *redis.Client {
	t.Helper()
	SkipUnlessIntegration(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host := containerHost(t, ctx, container)
	mapped, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get mapped Redis port: %v", err)
	}

	client, err := redis.NewClient(ctx, redis.Config{Host: host, Port: mapped.Int(), DialTimeout: 5 * time.Second}, Logger())
	if err != nil {
		t.Fatalf("failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func containerHost(t testing.TB, ctx context.Context, container testcontainers.Container) string {
	t.Helper()
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	return host
}

// Exec runs fixture statements against db and fails t on the first error.
func Exec(t testing.TB, db *sqlx.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("fixture %q failed: %v", fmt.Sprintf("%.60s", stmt), err)
		}
	}
}
