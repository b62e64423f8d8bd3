package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for golang-migrate

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/store/postgres/migrations"
)

// runMigrations applies pending schema migrations. golang-migrate takes a
// PostgreSQL advisory lock, so concurrent daemon instances serialize here.
func runMigrations(ctx context.Context, connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Record store schema is up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		version, dirty, _ := m.Version()
		logger.Info("Record store migrations applied", "version", version, "dirty", dirty)
	}
	return nil
}

// RunMigrations applies the record-store schema against the configured
// database. Exposed for the `depositd migrate` command.
func RunMigrations(ctx context.Context, cfg Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres configuration: %w", err)
	}
	return runMigrations(ctx, cfg.ConnectionString())
}
