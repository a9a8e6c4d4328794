// Package badger provides a domain.Store backed by BadgerDB.
// Keys are laid out as component + 0x00 + key so each component is a
// contiguous, prefix-scannable range.
package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tutu-network/cityledger/internal/domain"
)

const keySep = 0x00

// Store is a badger-backed domain.Store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	// writeMu serializes Update calls so badger never reports a conflict.
	writeMu sync.Mutex
}

// Open opens (or creates) a store under dir/kv. An empty dir opens an
// in-memory database.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		kvDir := filepath.Join(dir, "kv")
		if err := os.MkdirAll(kvDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		opts = badger.DefaultOptions(kvDir)
	}
	opts = opts.
		WithLogger(&slogAdapter{logger: logger.With("component", "badger")}).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// View runs fn in a read-only badger transaction.
func (s *Store) View(ctx context.Context, fn func(tx domain.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(btx *badger.Txn) error {
		return fn(&txn{tx: btx})
	})
}

// Update runs fn in a read-write badger transaction. badger discards every
// write when fn returns an error.
func (s *Store) Update(ctx context.Context, fn func(tx domain.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Update(func(btx *badger.Txn) error {
		return fn(&txn{tx: btx})
	})
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return domain.ErrStoreClosed
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type txn struct {
	tx *badger.Txn
}

func encodeKey(component, key string) []byte {
	b := make([]byte, 0, len(component)+1+len(key))
	b = append(b, component...)
	b = append(b, keySep)
	b = append(b, key...)
	return b
}

func (t *txn) Get(component, key string) ([]byte, error) {
	item, err := t.tx.Get(encodeKey(component, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *txn) Put(component, key string, value []byte) error {
	return t.tx.Set(encodeKey(component, key), value)
}

func (t *txn) Has(component, key string) (bool, error) {
	_, err := t.tx.Get(encodeKey(component, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t *txn) Scan(component, prefix string, fn func(key string, value []byte) error) error {
	full := encodeKey(component, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = full

	it := t.tx.NewIterator(opts)
	defer it.Close()

	base := len(component) + 1
	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(string(item.Key()[base:]), value); err != nil {
			return err
		}
	}
	return nil
}

// slogAdapter routes badger's internal logging to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
