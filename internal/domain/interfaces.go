package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store abstracts the persistent key-value state shared by every ledger.
// Keys are addressed by (component, key). Implemented by infra/sqlite,
// infra/badger and infra/memstore.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Txn) error) error

	// Update runs fn in a read-write transaction. Calls are serialized into a
	// single total order. If fn returns an error nothing it wrote is kept.
	Update(ctx context.Context, fn func(tx Txn) error) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Txn is a view of the store inside one transaction.
type Txn interface {
	// Get returns ErrKeyNotFound when the key is absent.
	Get(component, key string) ([]byte, error)
	Put(component, key string, value []byte) error
	Has(component, key string) (bool, error)

	// Scan calls fn for every key in component starting with prefix, in
	// ascending key order. Returning an error from fn stops the scan.
	Scan(component, prefix string, fn func(key string, value []byte) error) error
}

// AccessPolicy answers role questions for the admin and oracle singletons.
type AccessPolicy interface {
	IsAdmin(id Identity) bool
	IsOracle(id Identity) bool
}

// Advisor supplies the advisory recommendation attached to new proposals.
// Its output is opaque to the ledgers.
type Advisor interface {
	Recommend(ctx context.Context, title, description string, budget uint64) (string, error)
}

// EventPublisher fans committed events out to live subscribers.
// Publish is only called after the transaction that produced evts commits.
type EventPublisher interface {
	Publish(evts ...EventRecord)
}
