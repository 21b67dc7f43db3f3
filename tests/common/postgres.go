package common

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	postgresOnce      sync.Once
	postgresContainer *PostgresContainer
	postgresError     error
)

// PostgresContainer wraps a testcontainers Postgres instance used by
// DataStore tests to exercise real information_schema introspection and
// COPY-based writes.
type PostgresContainer struct {
	container *tcpostgres.PostgresContainer
	dsn       string
}

// StartPostgres starts a shared Postgres container for the test run. Uses
// sync.Once so only one container is created per process, mirroring
// StartSurrealDB's sharing strategy.
func StartPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	postgresOnce.Do(func() {
		ctx := context.Background()

		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("transformd_test"),
			tcpostgres.WithUsername("transformd"),
			tcpostgres.WithPassword("transformd"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			postgresError = fmt.Errorf("start Postgres container: %w", err)
			return
		}

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			container.Terminate(ctx)
			postgresError = fmt.Errorf("get Postgres connection string: %w", err)
			return
		}

		postgresContainer = &PostgresContainer{container: container, dsn: dsn}
	})

	if postgresError != nil {
		t.Fatalf("Postgres container failed: %v", postgresError)
	}

	return postgresContainer
}

// DSN returns the connection string for the shared database.
func (c *PostgresContainer) DSN() string {
	return c.dsn
}

// Cleanup terminates the container. Call from TestMain if needed.
func (c *PostgresContainer) Cleanup() {
	if c != nil && c.container != nil {
		c.container.Terminate(context.Background())
	}
}
