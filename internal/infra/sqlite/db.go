// Package sqlite provides SQLite-based persistent storage for cityledger.
// Uses WAL mode for concurrent reads and crash-safe writes. Every ledger
// component lives in one (component, key) → value table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/cityledger/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.Store.
type DB struct {
	db *sql.DB

	// writeMu serializes Update calls into a single total order.
	writeMu sync.Mutex
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode and a 5-second busy timeout; write transactions start
// with BEGIN IMMEDIATE.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			component TEXT NOT NULL,
			key       TEXT NOT NULL,
			value     BLOB NOT NULL,
			PRIMARY KEY (component, key)
		) WITHOUT ROWID`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

// View runs fn in a read-only SQL transaction.
func (d *DB) View(ctx context.Context, fn func(tx domain.Txn) error) error {
	tx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	return fn(&txn{ctx: ctx, tx: tx})
}

// Update runs fn in a write transaction, committing only if fn returns nil.
func (d *DB) Update(ctx context.Context, fn func(tx domain.Txn) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}

	if err := fn(&txn{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txn struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *txn) Get(component, key string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value FROM kv WHERE component = ? AND key = ?`, component, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrKeyNotFound
	}
	return value, err
}

func (t *txn) Put(component, key string, value []byte) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO kv (component, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(component, key) DO UPDATE SET value=excluded.value`,
		component, key, value,
	)
	return err
}

func (t *txn) Has(component, key string) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT COUNT(*) FROM kv WHERE component = ? AND key = ?`, component, key,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *txn) Scan(component, prefix string, fn func(key string, value []byte) error) error {
	query := `SELECT key, value FROM kv WHERE component = ? AND key >= ?`
	args := []any{component, prefix}
	if end, ok := prefixEnd(prefix); ok {
		query += ` AND key < ?`
		args = append(args, end)
	}
	query += ` ORDER BY key`

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// prefixEnd returns the smallest key greater than every key with prefix.
// ok is false when no upper bound exists (empty or all-0xff prefix).
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
