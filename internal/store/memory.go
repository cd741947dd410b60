package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memEntry struct {
	value   []byte
	version uint64
}

// Memory is an in-process Store with optimistic concurrency: transactions
// record the version of every key they read and commit only if none of
// those keys changed in the meantime.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]memEntry
	version uint64
	closed  bool

	// OnConflict, if set, is called each time an Update is retried.
	OnConflict func()
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]memEntry)}
}

func (m *Memory) Update(ctx context.Context, fn func(Txn) error) error {
	return RetryOnConflict(ctx, m.OnConflict, func() error {
		txn := m.begin(false)
		if err := fn(txn); err != nil {
			return err
		}
		return m.commit(txn)
	})
}

// View runs fn against a snapshot: commits wait until fn returns, so every
// read inside one View sees the same committed state. fn must not call
// Update on the same store.
func (m *Memory) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn := m.begin(true)
	txn.held = true
	return fn(txn)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Len returns the number of committed keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Memory) begin(readOnly bool) *memTxn {
	return &memTxn{
		store:    m,
		readOnly: readOnly,
		reads:    make(map[string]uint64),
		writes:   make(map[string][]byte),
	}
}

func (m *Memory) commit(t *memTxn) error {
	if len(t.writes) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	for key, seen := range t.reads {
		if m.data[key].version != seen {
			return ErrConflict
		}
	}
	m.version++
	for key, value := range t.writes {
		m.data[key] = memEntry{value: value, version: m.version}
	}
	return nil
}

// read returns the committed value and version of key. locked means the
// caller already holds m.mu.
func (m *Memory) read(key string, locked bool) ([]byte, uint64, bool) {
	if !locked {
		m.mu.RLock()
		defer m.mu.RUnlock()
	}
	e, ok := m.data[key]
	return e.value, e.version, ok
}

type memTxn struct {
	store    *Memory
	readOnly bool
	// held: the enclosing View holds the store's read lock.
	held     bool
	reads    map[string]uint64
	writes   map[string][]byte
}

func (t *memTxn) Get(key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		return clone(v), nil
	}
	v, version, ok := t.store.read(key, t.held)
	t.reads[key] = version
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (t *memTxn) Put(key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.writes[key] = clone(value)
	return nil
}

func (t *memTxn) Insert(key string, value []byte) error {
	if _, err := t.Get(key); err == nil {
		return ErrKeyExists
	}
	return t.Put(key, value)
}

func (t *memTxn) Scan(prefix string, fn func(key string, value []byte) error) error {
	merged := make(map[string][]byte)

	if !t.held {
		t.store.mu.RLock()
	}
	for k, e := range t.store.data {
		if strings.HasPrefix(k, prefix) {
			merged[k] = e.value
			t.reads[k] = e.version
		}
	}
	if !t.held {
		t.store.mu.RUnlock()
	}

	for k, v := range t.writes {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn(k, clone(merged[k])); err != nil {
			return err
		}
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
