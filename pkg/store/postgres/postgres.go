// Package postgres implements the record-store contract on PostgreSQL via
// pgx. Optimistic concurrency is a conditional UPDATE on the stored version;
// attribute lookups run against a GIN-indexed JSONB snapshot of the record's
// scalar fields, so FindByAttribute is immediately consistent.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// Store is a PostgreSQL-backed record store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL, optionally runs migrations, and returns the
// record store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}

	if cfg.AutoMigrate != nil && *cfg.AutoMigrate {
		if err := runMigrations(ctx, cfg.ConnectionString()); err != nil {
			return nil, err
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	if cfg.QueryTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] =
			fmt.Sprintf("%d", cfg.QueryTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("Connected to postgres record store",
		"host", cfg.Host, "database", cfg.Database, "max_conns", cfg.MaxConns)

	return &Store{pool: pool}, nil
}

// Create implements store.Client.
func (s *Store) Create(ctx context.Context, rec model.Record) (string, error) {
	if !rec.Kind().IsValid() {
		return "", fmt.Errorf("%w: %s", store.ErrUnknownKind, rec.Kind())
	}

	id := rec.GetID()
	if id == "" {
		id = uuid.NewString()
		rec.SetID(id)
	}
	rec.SetVersion(1)

	body, attrs, err := encode(rec)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (id, kind, version, body, attrs)
		VALUES ($1, $2, 1, $3, $4)
	`, id, string(rec.Kind()), body, attrs)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", rec.Kind(), err)
	}
	return id, nil
}

// Read implements store.Client.
func (s *Store) Read(ctx context.Context, id string, rec model.Record) error {
	var (
		version int64
		body    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT version, body FROM records WHERE id = $1 AND kind = $2
	`, id, string(rec.Kind())).Scan(&version, &body)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s %q: %w", rec.Kind(), id, err)
	}

	if err := json.Unmarshal(body, rec); err != nil {
		return fmt.Errorf("decode %s %q: %w", rec.Kind(), id, err)
	}
	rec.SetID(id)
	rec.SetVersion(version)
	return nil
}

// Update implements store.Client. The version predicate in the WHERE clause
// is the optimistic-concurrency check; zero rows touched means either the
// record is gone or another writer moved it first.
func (s *Store) Update(ctx context.Context, rec model.Record) error {
	body, attrs, err := encode(rec)
	if err != nil {
		return err
	}

	id := rec.GetID()
	tag, err := s.pool.Exec(ctx, `
		UPDATE records
		SET version = version + 1, body = $4, attrs = $5, updated_at = now()
		WHERE id = $1 AND kind = $2 AND version = $3
	`, id, string(rec.Kind()), rec.GetVersion(), body, attrs)
	if err != nil {
		return fmt.Errorf("update %s %q: %w", rec.Kind(), id, err)
	}

	if tag.RowsAffected() == 0 {
		var current int64
		err := s.pool.QueryRow(ctx, `
			SELECT version FROM records WHERE id = $1 AND kind = $2
		`, id, string(rec.Kind())).Scan(&current)
		if err == pgx.ErrNoRows {
			return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check %s %q: %w", rec.Kind(), id, err)
		}
		return fmt.Errorf("%s %q at version %d, expected %d: %w",
			rec.Kind(), id, current, rec.GetVersion(), store.ErrConflict)
	}

	rec.SetVersion(rec.GetVersion() + 1)
	return nil
}

// FindByAttribute implements store.Client via JSONB containment.
func (s *Store) FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error) {
	filter, err := json.Marshal(map[string]string{field: value})
	if err != nil {
		return nil, fmt.Errorf("encode attribute filter: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id FROM records WHERE kind = $1 AND attrs @> $2
	`, string(kind), filter)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return ids, nil
}

// HealthCheck implements store.Client.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements store.Client.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// encode returns the record body and the attribute snapshot, both as JSON
// ready for the jsonb columns.
func encode(rec model.Record) ([]byte, []byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	attrs, err := store.Attributes(rec)
	if err != nil {
		return nil, nil, err
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode attributes: %w", err)
	}
	return body, attrsJSON, nil
}

// Interface guard.
var _ store.Client = (*Store)(nil)
