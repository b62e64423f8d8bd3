// Package memory implements the record-store contract with in-process maps.
// It backs tests and ephemeral single-node runs; nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// record is the stored envelope: the serialized body plus the version and
// the attribute snapshot the secondary index is derived from.
type record struct {
	kind    model.Kind
	version int64
	body    []byte
	attrs   map[string]string
}

// Store is an in-memory record store.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	closed  bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*record)}
}

// Create implements store.Client.
func (s *Store) Create(ctx context.Context, rec model.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !rec.Kind().IsValid() {
		return "", fmt.Errorf("%w: %s", store.ErrUnknownKind, rec.Kind())
	}

	id := rec.GetID()
	if id == "" {
		id = uuid.NewString()
		rec.SetID(id)
	}
	rec.SetVersion(1)

	stored, err := encode(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", store.ErrClosed
	}
	s.records[id] = stored
	return id, nil
}

// Read implements store.Client.
func (s *Store) Read(ctx context.Context, id string, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}

	stored, ok := s.records[id]
	if !ok || stored.kind != rec.Kind() {
		return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
	}

	if err := json.Unmarshal(stored.body, rec); err != nil {
		return fmt.Errorf("decode %s %q: %w", rec.Kind(), id, err)
	}
	rec.SetID(id)
	rec.SetVersion(stored.version)
	return nil
}

// Update implements store.Client. The version carried by rec must match the
// stored version; on success the stored and carried versions advance.
func (s *Store) Update(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next, err := encode(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	id := rec.GetID()
	stored, ok := s.records[id]
	if !ok || stored.kind != rec.Kind() {
		return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
	}
	if stored.version != rec.GetVersion() {
		return fmt.Errorf("%s %q at version %d, expected %d: %w",
			rec.Kind(), id, stored.version, rec.GetVersion(), store.ErrConflict)
	}

	next.version = stored.version + 1
	s.records[id] = next
	rec.SetVersion(next.version)
	return nil
}

// FindByAttribute implements store.Client. The in-memory index is
// immediately consistent.
func (s *Store) FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var ids []string
	for id, stored := range s.records {
		if stored.kind != kind {
			continue
		}
		if v, ok := stored.attrs[field]; ok && v == value {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// HealthCheck implements store.Client.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Close implements store.Client.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}

func encode(rec model.Record) (*record, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	attrs, err := store.Attributes(rec)
	if err != nil {
		return nil, err
	}
	return &record{kind: rec.Kind(), body: body, attrs: attrs}, nil
}

// Interface guard.
var _ store.Client = (*Store)(nil)
