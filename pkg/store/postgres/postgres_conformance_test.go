//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/depositd/pkg/store"
	"github.com/marmos91/depositd/pkg/store/postgres"
	"github.com/marmos91/depositd/pkg/store/storetest"
)

// TestPostgresConformance runs the shared record-store suite against a
// disposable PostgreSQL container. Requires a Docker daemon; gated behind
// DEPOSITD_TEST_POSTGRES to keep CI opt-in.
func TestPostgresConformance(t *testing.T) {
	if os.Getenv("DEPOSITD_TEST_POSTGRES") == "" {
		t.Skip("DEPOSITD_TEST_POSTGRES not set, skipping postgres conformance tests")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("depositd_test"),
		tcpostgres.WithUsername("depositd_test"),
		tcpostgres.WithPassword("depositd_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := postgres.Config{
		Host:     host,
		Port:     port.Int(),
		Database: "depositd_test",
		User:     "depositd_test",
		Password: "depositd_test",
		SSLMode:  "disable",
	}

	storetest.Run(t, func(t *testing.T) store.Client {
		s, err := postgres.Open(ctx, cfg)
		if err != nil {
			t.Fatalf("failed to open postgres record store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		truncateRecords(t, cfg)
		return s
	})
}

// truncateRecords resets the shared database so each subtest starts empty.
func truncateRecords(t *testing.T, cfg postgres.Config) {
	t.Helper()
	db, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		t.Fatalf("failed to open cleanup connection: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("TRUNCATE records"); err != nil {
		t.Fatalf("failed to truncate records: %v", err)
	}
}
