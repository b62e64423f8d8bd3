package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/retry"
)

// Critical-section retry bounds for optimistic-concurrency conflicts.
const (
	CriticalMaxAttempts  = 5
	criticalInitialDelay = 50 * time.Millisecond
	criticalFactor       = 2.0
	criticalJitter       = 0.25
)

// Critical describes one guarded read-modify-write over a single record: the
// critical repository interaction. It is the only mechanism the pipeline
// uses to mutate persistent records.
//
// Precondition gates the mutation: when it returns false the record is left
// untouched and the result reports Success=false with the observed record.
// Mutation edits the record in place. Postcondition runs against a fresh
// read-back after the write landed; it must always be evaluated because a
// second writer may have interleaved between our update and the read-back.
//
// A nil Precondition or Postcondition means "always true".
type Critical[T any] struct {
	Precondition  func(*T) bool
	Mutation      func(*T)
	Postcondition func(*T) bool
}

// CriticalResult carries the outcome of a critical section.
//
// Record is the entity observed last: the pre-image when the precondition
// rejected, the post-write read-back otherwise. Err is set only for store
// failures (not for a false precondition or postcondition, which are normal
// control signals).
type CriticalResult[T any] struct {
	Success bool
	Record  *T
	Err     error
}

// PerformCritical executes the critical section against the record with the
// given id. Version conflicts restart the whole section (fresh read,
// precondition re-checked) up to CriticalMaxAttempts times with jittered
// backoff.
func PerformCritical[T any, P interface {
	*T
	model.Record
}](ctx context.Context, c Client, id string, crit Critical[T]) CriticalResult[T] {
	policy := retry.Policy{
		InitialDelay: criticalInitialDelay,
		Factor:       criticalFactor,
		Jitter:       criticalJitter,
		MaxAttempts:  CriticalMaxAttempts,
	}

	var result CriticalResult[T]
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		result = performOnce[T, P](ctx, c, id, crit)
		// Only a lost optimistic race re-runs the section.
		if result.Err != nil && isConflict(result.Err) {
			return result.Err
		}
		return nil
	})
	if err != nil && result.Err == nil {
		result.Err = err
	}
	return result
}

func performOnce[T any, P interface {
	*T
	model.Record
}](ctx context.Context, c Client, id string, crit Critical[T]) CriticalResult[T] {
	rec, err := Get[T, P](ctx, c, id)
	if err != nil {
		return CriticalResult[T]{Err: fmt.Errorf("critical read %q: %w", id, err)}
	}

	if crit.Precondition != nil && !crit.Precondition(rec) {
		return CriticalResult[T]{Success: false, Record: rec}
	}

	if crit.Mutation != nil {
		crit.Mutation(rec)
	}

	if err := c.Update(ctx, P(rec)); err != nil {
		return CriticalResult[T]{Record: rec, Err: fmt.Errorf("critical update %q: %w", id, err)}
	}

	// Read back and post-check even if the caller intends no further
	// action: a second writer may have interleaved after our update.
	after, err := Get[T, P](ctx, c, id)
	if err != nil {
		return CriticalResult[T]{Record: rec, Err: fmt.Errorf("critical read-back %q: %w", id, err)}
	}

	ok := crit.Postcondition == nil || crit.Postcondition(after)
	return CriticalResult[T]{Success: ok, Record: after}
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
