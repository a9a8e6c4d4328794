package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/storetest"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	// Check file exists
	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	err = db1.Update(context.Background(), func(tx domain.Txn) error {
		return tx.Put("proposals", "0000000000", []byte(`{"id":0}`))
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	db1.Close()

	// Re-open same directory: migrations must be idempotent and data kept
	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db2.Close()

	err = db2.View(context.Background(), func(tx domain.Txn) error {
		v, err := tx.Get("proposals", "0000000000")
		if err != nil {
			return err
		}
		if string(v) != `{"id":0}` {
			t.Errorf("value = %s, want {\"id\":0}", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() error: %v", err)
	}
}

// ─── Conformance ────────────────────────────────────────────────────────────

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		db, err := Open(t.TempDir())
		if err != nil {
			t.Fatalf("Open() error: %v", err)
		}
		return db
	})
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"", "", false},
		{"abc", "abd", true},
		{"0000000001/", "00000000010", true},
		{"a\xff", "b", true},
		{"\xff\xff", "", false},
	}
	for _, tt := range tests {
		got, ok := prefixEnd(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("prefixEnd(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
