// Package badger implements the record-store contract on an embedded
// BadgerDB instance. It serves single-node deployments that want durable
// records without an external database.
//
// Layout: each record lives under a primary key `r/<kind>/<id>` as a JSON
// envelope (version, body, attribute snapshot). Secondary lookups go through
// index keys `i/<kind>/<field>/<value>/<id>` maintained in the same
// transaction as the record write, so FindByAttribute is immediately
// consistent here.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// envelope is the stored representation of one record.
type envelope struct {
	Version int64             `json:"version"`
	Body    json.RawMessage   `json:"body"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// Store is a BadgerDB-backed record store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a record store at the given directory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func keyRecord(kind model.Kind, id string) []byte {
	return []byte(fmt.Sprintf("r/%s/%s", kind, id))
}

func keyIndex(kind model.Kind, field, value, id string) []byte {
	return []byte(fmt.Sprintf("i/%s/%s/%s/%s", kind, escape(field), escape(value), id))
}

func prefixIndex(kind model.Kind, field, value string) []byte {
	return []byte(fmt.Sprintf("i/%s/%s/%s/", kind, escape(field), escape(value)))
}

// escape keeps field and value segments from colliding with the key
// separator.
func escape(s string) string {
	return strings.ReplaceAll(s, "/", "%2F")
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

	env, attrs, err := encode(rec, 1)
	if err != nil {
		return "", err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyRecord(rec.Kind(), id), env); err != nil {
			return fmt.Errorf("store record: %w", err)
		}
		return writeIndex(txn, rec.Kind(), id, nil, attrs)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Read implements store.Client.
func (s *Store) Read(ctx context.Context, id string, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyRecord(rec.Kind(), id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}

		return item.Value(func(val []byte) error {
			var env envelope
			if err := json.Unmarshal(val, &env); err != nil {
				return fmt.Errorf("decode %s %q: %w", rec.Kind(), id, err)
			}
			if err := json.Unmarshal(env.Body, rec); err != nil {
				return fmt.Errorf("decode %s %q body: %w", rec.Kind(), id, err)
			}
			rec.SetID(id)
			rec.SetVersion(env.Version)
			return nil
		})
	})
}

// Update implements store.Client. Badger serializes the read-check-write in
// one transaction, so the version comparison is race-free.
func (s *Store) Update(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := rec.GetID()
	key := keyRecord(rec.Kind(), id)

	var newVersion int64
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%s %q: %w", rec.Kind(), id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}

		var current envelope
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return fmt.Errorf("decode %s %q: %w", rec.Kind(), id, err)
		}

		if current.Version != rec.GetVersion() {
			return fmt.Errorf("%s %q at version %d, expected %d: %w",
				rec.Kind(), id, current.Version, rec.GetVersion(), store.ErrConflict)
		}

		newVersion = current.Version + 1
		env, attrs, err := encode(rec, newVersion)
		if err != nil {
			return err
		}
		if err := txn.Set(key, env); err != nil {
			return fmt.Errorf("store record: %w", err)
		}
		return writeIndex(txn, rec.Kind(), id, current.Attrs, attrs)
	})
	if err != nil {
		return err
	}

	rec.SetVersion(newVersion)
	return nil
}

// FindByAttribute implements store.Client via the index-key prefix scan.
func (s *Store) FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := prefixIndex(kind, field, value)
	var ids []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	return ids, nil
}

// HealthCheck implements store.Client.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return store.ErrClosed
	}
	return nil
}

// Close implements store.Client.
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(rec model.Record, version int64) ([]byte, map[string]string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", rec.Kind(), err)
	}
	attrs, err := store.Attributes(rec)
	if err != nil {
		return nil, nil, err
	}
	env, err := json.Marshal(envelope{Version: version, Body: body, Attrs: attrs})
	if err != nil {
		return nil, nil, fmt.Errorf("encode envelope: %w", err)
	}
	return env, attrs, nil
}

// writeIndex reconciles the secondary index entries for one record inside
// the caller's transaction.
func writeIndex(txn *badger.Txn, kind model.Kind, id string, old, next map[string]string) error {
	for field, value := range old {
		if nv, ok := next[field]; ok && nv == value {
			continue
		}
		if err := txn.Delete(keyIndex(kind, field, value, id)); err != nil {
			return fmt.Errorf("drop index entry: %w", err)
		}
	}
	for field, value := range next {
		if ov, ok := old[field]; ok && ov == value {
			continue
		}
		if err := txn.Set(keyIndex(kind, field, value, id), nil); err != nil {
			return fmt.Errorf("write index entry: %w", err)
		}
	}
	return nil
}

// Interface guard.
var _ store.Client = (*Store)(nil)
