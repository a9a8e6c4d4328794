// Package storetest is a conformance suite every domain.Store backend must
// pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/cityledger/internal/domain"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) domain.Store

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.Store)
	}{
		{"GetMissing", testGetMissing},
		{"PutGet", testPutGet},
		{"Overwrite", testOverwrite},
		{"ComponentsIsolated", testComponentsIsolated},
		{"ScanPrefixOrdered", testScanPrefixOrdered},
		{"ScanStops", testScanStops},
		{"RollbackOnError", testRollbackOnError},
		{"ReadYourWrites", testReadYourWrites},
		{"SerializedUpdates", testSerializedUpdates},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func put(t *testing.T, s domain.Store, component, key, value string) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx domain.Txn) error {
		return tx.Put(component, key, []byte(value))
	}))
}

func get(t *testing.T, s domain.Store, component, key string) (string, error) {
	t.Helper()
	var out string
	err := s.View(context.Background(), func(tx domain.Txn) error {
		v, err := tx.Get(component, key)
		out = string(v)
		return err
	})
	return out, err
}

func testGetMissing(t *testing.T, s domain.Store) {
	_, err := get(t, s, "c", "nope")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	require.NoError(t, s.View(context.Background(), func(tx domain.Txn) error {
		ok, err := tx.Has("c", "nope")
		assert.False(t, ok)
		return err
	}))
}

func testPutGet(t *testing.T, s domain.Store) {
	put(t, s, "c", "k", `{"v":1}`)
	v, err := get(t, s, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, v)
}

func testOverwrite(t *testing.T, s domain.Store) {
	put(t, s, "c", "k", "one")
	put(t, s, "c", "k", "two")
	v, err := get(t, s, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func testComponentsIsolated(t *testing.T, s domain.Store) {
	put(t, s, "a", "k", "A")
	put(t, s, "ab", "k", "AB")
	put(t, s, "b", "k", "B")

	v, err := get(t, s, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, "A", v)

	var keys []string
	require.NoError(t, s.View(context.Background(), func(tx domain.Txn) error {
		return tx.Scan("a", "", func(key string, _ []byte) error {
			keys = append(keys, key)
			return nil
		})
	}))
	assert.Equal(t, []string{"k"}, keys)
}

func testScanPrefixOrdered(t *testing.T, s domain.Store) {
	for _, k := range []string{"0000000002/x", "0000000001/b", "0000000001/a", "0000000010/a", "0000000001"} {
		put(t, s, "ballots", k, k)
	}

	var keys []string
	require.NoError(t, s.View(context.Background(), func(tx domain.Txn) error {
		return tx.Scan("ballots", "0000000001/", func(key string, value []byte) error {
			assert.Equal(t, key, string(value))
			keys = append(keys, key)
			return nil
		})
	}))
	assert.Equal(t, []string{"0000000001/a", "0000000001/b"}, keys)

	keys = nil
	require.NoError(t, s.View(context.Background(), func(tx domain.Txn) error {
		return tx.Scan("ballots", "", func(key string, _ []byte) error {
			keys = append(keys, key)
			return nil
		})
	}))
	assert.Equal(t, []string{"0000000001", "0000000001/a", "0000000001/b", "0000000002/x", "0000000010/a"}, keys)
}

func testScanStops(t *testing.T, s domain.Store) {
	for i := range 5 {
		put(t, s, "c", fmt.Sprintf("k%d", i), "v")
	}
	stop := errors.New("stop")
	seen := 0
	err := s.View(context.Background(), func(tx domain.Txn) error {
		return tx.Scan("c", "", func(string, []byte) error {
			seen++
			if seen == 2 {
				return stop
			}
			return nil
		})
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

func testRollbackOnError(t *testing.T, s domain.Store) {
	put(t, s, "c", "kept", "1")
	boom := errors.New("boom")

	err := s.Update(context.Background(), func(tx domain.Txn) error {
		if err := tx.Put("c", "kept", []byte("2")); err != nil {
			return err
		}
		if err := tx.Put("c", "new", []byte("x")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := get(t, s, "c", "kept")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	_, err = get(t, s, "c", "new")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func testReadYourWrites(t *testing.T, s domain.Store) {
	put(t, s, "c", "a", "old")
	require.NoError(t, s.Update(context.Background(), func(tx domain.Txn) error {
		require.NoError(t, tx.Put("c", "a", []byte("new")))
		require.NoError(t, tx.Put("c", "b", []byte("b")))

		v, err := tx.Get("c", "a")
		require.NoError(t, err)
		assert.Equal(t, "new", string(v))

		ok, err := tx.Has("c", "b")
		require.NoError(t, err)
		assert.True(t, ok)

		var keys []string
		require.NoError(t, tx.Scan("c", "", func(key string, _ []byte) error {
			keys = append(keys, key)
			return nil
		}))
		assert.Equal(t, []string{"a", "b"}, keys)
		return nil
	}))
}

// testSerializedUpdates runs concurrent read-modify-write increments; a
// store that does not serialize Update loses some of them.
func testSerializedUpdates(t *testing.T, s domain.Store) {
	const workers, rounds = 8, 25
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				err := s.Update(context.Background(), func(tx domain.Txn) error {
					n := 0
					v, err := tx.Get("c", "counter")
					if err == nil {
						fmt.Sscanf(string(v), "%d", &n)
					} else if !errors.Is(err, domain.ErrKeyNotFound) {
						return err
					}
					return tx.Put("c", "counter", []byte(fmt.Sprint(n+1)))
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	v, err := get(t, s, "c", "counter")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(workers*rounds), v)
}

func testPing(t *testing.T, s domain.Store) {
	require.NoError(t, s.Ping(context.Background()))
}
