// Package kv provides typed access to the (component, key) → value store.
// Values are JSON encoded; ids are zero-padded so key order matches numeric
// order during prefix scans.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tutu-network/cityledger/internal/domain"
)

// seqComponent holds one id counter per ledger component.
const seqComponent = "seq"

// IDKey encodes a ledger id as a sortable key.
func IDKey(id uint32) string {
	return fmt.Sprintf("%010d", id)
}

// SeqKey encodes a 64-bit sequence number as a sortable key.
func SeqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// PairKey builds the composite key (id, sub) used for ballots and logs.
func PairKey(id uint32, sub string) string {
	return IDKey(id) + "/" + sub
}

// PairPrefix returns the prefix shared by every PairKey of id.
func PairPrefix(id uint32) string {
	return IDKey(id) + "/"
}

// Get decodes the value at (component, key). found is false when absent.
func Get[T any](tx domain.Txn, component, key string) (v T, found bool, err error) {
	raw, err := tx.Get(component, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("get %s/%s: %w", component, key, err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s/%s: %w", component, key, err)
	}
	return v, true, nil
}

// GetOr decodes the value at (component, key), returning def when absent.
func GetOr[T any](tx domain.Txn, component, key string, def T) (T, error) {
	v, found, err := Get[T](tx, component, key)
	if err != nil || !found {
		return def, err
	}
	return v, nil
}

// Put encodes v and stores it at (component, key).
func Put(tx domain.Txn, component, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", component, key, err)
	}
	if err := tx.Put(component, key, raw); err != nil {
		return fmt.Errorf("put %s/%s: %w", component, key, err)
	}
	return nil
}

// List decodes every value in component whose key starts with prefix.
func List[T any](tx domain.Txn, component, prefix string) ([]T, error) {
	var out []T
	err := tx.Scan(component, prefix, func(key string, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s/%s: %w", component, key, err)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// Count returns how many ids component has allocated so far.
func Count(tx domain.Txn, component string) (uint64, error) {
	raw, err := tx.Get(seqComponent, component)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

// Next allocates the next id of component. Ids start at 0 and are never
// reused.
func Next(tx domain.Txn, component string) (uint64, error) {
	n, err := Count(tx, component)
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", component, err)
	}
	if err := tx.Put(seqComponent, component, []byte(strconv.FormatUint(n+1, 10))); err != nil {
		return 0, fmt.Errorf("bump counter %s: %w", component, err)
	}
	return n, nil
}

// NextID allocates the next 32-bit ledger id of component.
func NextID(tx domain.Txn, component string) (uint32, error) {
	n, err := Next(tx, component)
	if err != nil {
		return 0, err
	}
	if n > uint64(^uint32(0)) {
		return 0, fmt.Errorf("counter %s exhausted", component)
	}
	return uint32(n), nil
}
