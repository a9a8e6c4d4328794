// Package memstore provides an in-memory transactional domain.Store.
// Writes are staged in an overlay and applied only when the transaction
// function returns nil, so a failed operation leaves no trace.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/tutu-network/cityledger/internal/domain"
)

// Store is a process-local domain.Store. Data does not survive restarts.
type Store struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte // component → key → value
	closed bool
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

// View runs fn against a read-only snapshot.
func (s *Store) View(ctx context.Context, fn func(tx domain.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return fn(&txn{store: s, readOnly: true})
}

// Update runs fn exclusively and commits its writes if it returns nil.
func (s *Store) Update(ctx context.Context, fn func(tx domain.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}

	t := &txn{store: s, writes: make(map[string]map[string][]byte)}
	if err := fn(t); err != nil {
		return err
	}
	for comp, kvs := range t.writes {
		dst, ok := s.data[comp]
		if !ok {
			dst = make(map[string][]byte)
			s.data[comp] = dst
		}
		for k, v := range kvs {
			dst[k] = v
		}
	}
	return nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return nil
}

// Close drops all data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}

type txn struct {
	store    *Store
	writes   map[string]map[string][]byte
	readOnly bool
}

func (t *txn) Get(component, key string) ([]byte, error) {
	if v, ok := t.writes[component][key]; ok {
		return clone(v), nil
	}
	if v, ok := t.store.data[component][key]; ok {
		return clone(v), nil
	}
	return nil, domain.ErrKeyNotFound
}

func (t *txn) Put(component, key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	kvs, ok := t.writes[component]
	if !ok {
		kvs = make(map[string][]byte)
		t.writes[component] = kvs
	}
	kvs[key] = clone(value)
	return nil
}

func (t *txn) Has(component, key string) (bool, error) {
	if _, ok := t.writes[component][key]; ok {
		return true, nil
	}
	_, ok := t.store.data[component][key]
	return ok, nil
}

func (t *txn) Scan(component, prefix string, fn func(key string, value []byte) error) error {
	merged := make(map[string][]byte)
	for k, v := range t.store.data[component] {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k, v := range t.writes[component] {
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

var errReadOnly = errors.New("memstore: write in read-only transaction")

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
