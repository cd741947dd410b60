// Package store defines the transactional key-value contract the settlement
// engine runs against, with in-memory and Badger implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound  = errors.New("store: key not found")
	ErrKeyExists = errors.New("store: key already exists")
	ErrConflict  = errors.New("store: transaction conflict")
	ErrReadOnly  = errors.New("store: write in read-only transaction")
	ErrClosed    = errors.New("store: closed")
)

// Txn is a view of the store inside one transaction. Writes become visible
// to other transactions only when the enclosing Update commits.
type Txn interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	// Insert writes key only if it is absent, else ErrKeyExists.
	Insert(key string, value []byte) error
	// Scan visits keys with the given prefix in ascending key order.
	Scan(prefix string, fn func(key string, value []byte) error) error
}

// Store runs closures atomically. Update may execute fn more than once when
// a concurrent writer conflicts; fn must not leak effects outside the Txn
// except through variables it resets on entry.
type Store interface {
	Update(ctx context.Context, fn func(Txn) error) error
	View(ctx context.Context, fn func(Txn) error) error
	Close() error
}

// MaxConflictRetries bounds how often a conflicting Update is re-run.
const MaxConflictRetries = 32

// RetryOnConflict re-runs attempt while it reports ErrConflict.
func RetryOnConflict(ctx context.Context, onConflict func(), attempt func() error) error {
	backoff := 50 * time.Microsecond
	for i := 0; ; i++ {
		err := attempt()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if onConflict != nil {
			onConflict()
		}
		if i+1 >= MaxConflictRetries {
			return fmt.Errorf("gave up after %d attempts: %w", i+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Millisecond {
			backoff *= 2
		}
	}
}
