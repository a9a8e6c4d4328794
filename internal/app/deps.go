// Package app holds the pieces shared by every ledger service: the
// collaborator bundle handed to each service at construction and the
// Mutate wrapper that turns one handler into one atomic, event-emitting
// store transaction.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/kv"
	"github.com/tutu-network/cityledger/internal/infra/metrics"
)

// EventsComponent is the store component holding the persisted event log.
const EventsComponent = "events"

// Deps bundles the external collaborators of a ledger service.
type Deps struct {
	Store  domain.Store
	Access domain.AccessPolicy
	Events domain.EventPublisher // Optional live fan-out
	Now    func() time.Time      // Clock; time.Now when nil
	Logger *slog.Logger
}

// WithDefaults fills unset optional collaborators.
func (d Deps) WithDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Access == nil {
		d.Access = denyAll{}
	}
	return d
}

type denyAll struct{}

func (denyAll) IsAdmin(domain.Identity) bool  { return false }
func (denyAll) IsOracle(domain.Identity) bool { return false }

// Emitter collects the events of one mutation. They are persisted inside
// the same transaction and published only after it commits.
type Emitter struct {
	events []domain.Event
}

// Emit queues evt.
func (e *Emitter) Emit(evt domain.Event) {
	e.events = append(e.events, evt)
}

// Mutate runs fn as one indivisible ledger operation: every write fn makes
// and every event it emits commit together, or none of them do.
func (d Deps) Mutate(ctx context.Context, op string, fn func(tx domain.Txn, emit *Emitter) error) error {
	start := time.Now()
	now := d.Now()

	var records []domain.EventRecord
	err := d.Store.Update(ctx, func(tx domain.Txn) error {
		em := &Emitter{}
		if err := fn(tx, em); err != nil {
			return err
		}
		recs, err := appendEvents(tx, em.events, now)
		if err != nil {
			return err
		}
		records = recs
		return nil
	})

	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := domain.ErrorKind(err)
		metrics.Operations.WithLabelValues(op, kind).Inc()
		if kind == "Internal" {
			d.Logger.Error("operation failed", "op", op, "error", err)
		} else {
			d.Logger.Info("operation rejected", "op", op, "kind", kind, "error", err)
		}
		return err
	}

	metrics.Operations.WithLabelValues(op, "ok").Inc()
	for _, r := range records {
		metrics.EventsEmitted.WithLabelValues(r.Name).Inc()
	}
	if d.Events != nil && len(records) > 0 {
		d.Events.Publish(records...)
	}
	d.Logger.Debug("operation committed", "op", op, "events", len(records))
	return nil
}

func appendEvents(tx domain.Txn, evts []domain.Event, now time.Time) ([]domain.EventRecord, error) {
	records := make([]domain.EventRecord, 0, len(evts))
	for _, evt := range evts {
		payload, err := json.Marshal(evt.Payload())
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", evt.EventName(), err)
		}
		seq, err := kv.Next(tx, EventsComponent)
		if err != nil {
			return nil, err
		}
		rec := domain.EventRecord{
			ID:        uuid.NewString(),
			Seq:       seq,
			Name:      evt.EventName(),
			Topics:    evt.Topics(),
			Payload:   payload,
			Timestamp: now,
		}
		if err := kv.Put(tx, EventsComponent, kv.SeqKey(seq), rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

var errStopScan = errors.New("stop scan")

// ListEvents returns up to limit persisted events with Seq > after, oldest
// first. A limit ≤ 0 returns everything.
func ListEvents(ctx context.Context, store domain.Store, after *uint64, limit int) ([]domain.EventRecord, error) {
	var out []domain.EventRecord
	err := store.View(ctx, func(tx domain.Txn) error {
		return tx.Scan(EventsComponent, "", func(key string, raw []byte) error {
			var rec domain.EventRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode event %s: %w", key, err)
			}
			if after != nil && rec.Seq <= *after {
				return nil
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				return errStopScan
			}
			return nil
		})
	})
	if errors.Is(err, errStopScan) {
		err = nil
	}
	return out, err
}
