package config

import (
	"context"
	"fmt"

	"github.com/marmos91/depositd/pkg/store"
	"github.com/marmos91/depositd/pkg/store/badger"
	httpstore "github.com/marmos91/depositd/pkg/store/http"
	"github.com/marmos91/depositd/pkg/store/memory"
	pgstore "github.com/marmos91/depositd/pkg/store/postgres"
	sqlstore "github.com/marmos91/depositd/pkg/store/sql"
)

// CreateStore creates the record store client selected by the
// configuration.
func CreateStore(ctx context.Context, cfg StoreConfig) (store.Client, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil

	case "badger":
		if cfg.Badger.Path == "" {
			return nil, fmt.Errorf("badger store requires a path")
		}
		s, err := badger.Open(cfg.Badger.Path)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, nil

	case "sql", "":
		s, err := sqlstore.Open(cfg.SQL)
		if err != nil {
			return nil, fmt.Errorf("open sql store: %w", err)
		}
		return s, nil

	case "postgres":
		s, err := pgstore.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil

	case "http":
		s, err := httpstore.New(cfg.HTTP)
		if err != nil {
			return nil, fmt.Errorf("create http store client: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}
