// Package sql implements the record-store contract on GORM, serving small
// deployments that want a single-file SQLite database or an existing
// PostgreSQL server without the dedicated pgx backend.
//
// Records live in one table plus a narrow attribute table that serves
// FindByAttribute; both are written in a transaction, so lookups are
// immediately consistent. Optimistic concurrency is a conditional UPDATE on
// the stored version.
package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// Driver selects the SQL backend.
type Driver string

const (
	// DriverSQLite uses a single-file SQLite database (default).
	DriverSQLite Driver = "sqlite"

	// DriverPostgres uses PostgreSQL through GORM.
	DriverPostgres Driver = "postgres"
)

// Config holds the SQL record-store settings.
type Config struct {
	// Driver selects sqlite or postgres.
	// Default: sqlite
	Driver Driver `mapstructure:"driver" yaml:"driver"`

	// Path is the SQLite database file (sqlite driver only).
	Path string `mapstructure:"path" yaml:"path,omitempty"`

	// DSN is the PostgreSQL connection string (postgres driver only).
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// recordRow is the GORM model for the records table.
type recordRow struct {
	ID      string `gorm:"primaryKey"`
	Kind    string `gorm:"index;not null"`
	Version int64  `gorm:"not null"`
	Body    []byte `gorm:"not null"`
}

func (recordRow) TableName() string { return "records" }

// attributeRow is the GORM model for the secondary index.
type attributeRow struct {
	RecordID string `gorm:"primaryKey"`
	Field    string `gorm:"primaryKey;index:idx_attr_lookup,priority:2"`
	Value    string `gorm:"index:idx_attr_lookup,priority:3"`
	Kind     string `gorm:"index:idx_attr_lookup,priority:1"`
}

func (attributeRow) TableName() string { return "record_attributes" }

// Store is a GORM-backed record store.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite record store requires path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		// WAL keeps concurrent readers off the single writer's back;
		// busy_timeout rides out short lock contention.
		dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres record store requires dsn")
		}
		dialector = gormpg.Open(cfg.DSN)

	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.AutoMigrate(&recordRow{}, &attributeRow{}); err != nil {
		return nil, fmt.Errorf("migrate record schema: %w", err)
	}

	return &Store{db: db}, nil
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

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := recordRow{ID: id, Kind: string(rec.Kind()), Version: 1, Body: body}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return writeAttributes(tx, rec.Kind(), id, attrs)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Read implements store.Client.
func (s *Store) Read(ctx context.Context, id string, rec model.Record) error {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND kind = ?", id, string(rec.Kind())).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s %q: %w", rec.Kind(), id, err)
	}

	if err := json.Unmarshal(row.Body, rec); err != nil {
		return fmt.Errorf("decode %s %q: %w", rec.Kind(), id, err)
	}
	rec.SetID(id)
	rec.SetVersion(row.Version)
	return nil
}

// Update implements store.Client.
func (s *Store) Update(ctx context.Context, rec model.Record) error {
	body, attrs, err := encode(rec)
	if err != nil {
		return err
	}

	id := rec.GetID()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&recordRow{}).
			Where("id = ? AND kind = ? AND version = ?", id, string(rec.Kind()), rec.GetVersion()).
			Updates(map[string]any{
				"version": rec.GetVersion() + 1,
				"body":    body,
			})
		if result.Error != nil {
			return fmt.Errorf("update %s %q: %w", rec.Kind(), id, result.Error)
		}

		if result.RowsAffected == 0 {
			var current recordRow
			err := tx.Where("id = ? AND kind = ?", id, string(rec.Kind())).First(&current).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("check %s %q: %w", rec.Kind(), id, err)
			}
			return fmt.Errorf("%s %q at version %d, expected %d: %w",
				rec.Kind(), id, current.Version, rec.GetVersion(), store.ErrConflict)
		}

		if err := tx.Where("record_id = ?", id).Delete(&attributeRow{}).Error; err != nil {
			return fmt.Errorf("drop attribute rows: %w", err)
		}
		if err := writeAttributes(tx, rec.Kind(), id, attrs); err != nil {
			return err
		}

		rec.SetVersion(rec.GetVersion() + 1)
		return nil
	})
}

// FindByAttribute implements store.Client.
func (s *Store) FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&attributeRow{}).
		Where("kind = ? AND field = ? AND value = ?", string(kind), field, value).
		Pluck("record_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	return ids, nil
}

// HealthCheck implements store.Client.
func (s *Store) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements store.Client.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func encode(rec model.Record) ([]byte, map[string]string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	attrs, err := store.Attributes(rec)
	if err != nil {
		return nil, nil, err
	}
	return body, attrs, nil
}

func writeAttributes(tx *gorm.DB, kind model.Kind, id string, attrs map[string]string) error {
	if len(attrs) == 0 {
		return nil
	}
	rows := make([]attributeRow, 0, len(attrs))
	for field, value := range attrs {
		rows = append(rows, attributeRow{
			RecordID: id,
			Kind:     string(kind),
			Field:    field,
			Value:    value,
		})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert attribute rows: %w", err)
	}
	return nil
}

// Interface guard.
var _ store.Client = (*Store)(nil)
