// Package store defines the client contract for the shared record store and
// helpers common to all backends.
//
// The record store is the only durable state the pipeline has. Every backend
// provides typed CRUD with optimistic versioning plus a secondary-index
// lookup by attribute value. Which backend serves a deployment is chosen in
// configuration; see the memory, badger, postgres, sql, and http
// subpackages.
package store

import (
	"context"
	"time"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/retry"
)

// Client is the record-store contract the pipeline programs against.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Create persists a new record. If the record carries no id, the
	// backend assigns one. On return the record's id and initial version
	// are set.
	Create(ctx context.Context, rec model.Record) (string, error)

	// Read loads the record with the given id into rec and sets the
	// version observed. Returns ErrNotFound if no such record exists.
	Read(ctx context.Context, id string, rec model.Record) error

	// Update persists rec at the version it carries. Returns ErrConflict
	// when another writer has moved the record past that version. On
	// success the record's version is advanced.
	Update(ctx context.Context, rec model.Record) error

	// FindByAttribute returns the ids of records of the given kind whose
	// top-level attribute equals value. Lookups may be eventually
	// consistent; callers that need visibility use WaitIndexed.
	FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error)

	// HealthCheck verifies the backend is reachable and serving.
	HealthCheck(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Index-visibility wait bounds (geometric backoff).
const (
	IndexWaitTimeout = 30 * time.Second
	indexWaitBase    = 1 * time.Second
	indexWaitFactor  = 1.5
)

// WaitIndexed blocks until the record with the given id is visible through
// FindByAttribute, retrying with geometric backoff for up to
// IndexWaitTimeout. A negative lookup before this wait has elapsed must not
// be treated as proof of non-existence.
func WaitIndexed(ctx context.Context, c Client, kind model.Kind, id string) error {
	policy := retry.Policy{
		InitialDelay: indexWaitBase,
		Factor:       indexWaitFactor,
		Timeout:      IndexWaitTimeout,
	}

	_, err := retry.Await(ctx, policy, func(ctx context.Context) ([]string, error) {
		return c.FindByAttribute(ctx, kind, "id", id)
	}, func(ids []string) bool {
		return len(ids) > 0
	})
	return err
}

// Get reads the record with the given id into a freshly allocated T.
//
//	dep, err := store.Get[model.Deposit](ctx, client, id)
func Get[T any, P interface {
	*T
	model.Record
}](ctx context.Context, c Client, id string) (*T, error) {
	var rec T
	if err := c.Read(ctx, id, P(&rec)); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAll reads every listed id into a freshly allocated T, preserving order.
func GetAll[T any, P interface {
	*T
	model.Record
}](ctx context.Context, c Client, ids []string) ([]*T, error) {
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		rec, err := Get[T, P](ctx, c, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
