package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is a Store on an embedded Badger database. Badger's serializable
// snapshot isolation supplies the per-record atomicity; conflicting commits
// surface as badger.ErrConflict and are retried.
type Badger struct {
	db *badger.DB

	OnConflict func()
}

type BadgerOptions struct {
	Path     string
	InMemory bool
	ReadOnly bool
}

func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("badger store: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Update(ctx context.Context, fn func(Txn) error) error {
	return RetryOnConflict(ctx, b.OnConflict, func() error {
		err := b.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTxn{txn: txn})
		})
		if errors.Is(err, badger.ErrConflict) {
			return ErrConflict
		}
		return err
	})
}

func (b *Badger) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTxn{txn: txn, readOnly: true})
	})
}

func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type badgerTxn struct {
	txn      *badger.Txn
	readOnly bool
}

func (t *badgerTxn) Get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Put(key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.txn.Set([]byte(key), value)
}

func (t *badgerTxn) Insert(key string, value []byte) error {
	if _, err := t.Get(key); err == nil {
		return ErrKeyExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return t.Put(key, value)
}

func (t *badgerTxn) Scan(prefix string, fn func(key string, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(item.KeyCopy(nil)), value); err != nil {
			return err
		}
	}
	return nil
}
