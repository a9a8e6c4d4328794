// Package eventbus fans committed ledger events out to live subscribers
// (SSE streams, CLI tails). Delivery never blocks the publisher: a
// subscriber whose buffer is full misses the event, and the drop is
// counted. The persisted event log remains the source of truth.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tutu-network/cityledger/internal/domain"
)

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

// SubscriberID identifies a subscription for Unsubscribe.
type SubscriberID int

type subscriber struct {
	ch    chan domain.EventRecord
	names map[string]bool // empty = all events
}

func (s *subscriber) wants(name string) bool {
	return len(s.names) == 0 || s.names[name]
}

type busMetrics struct {
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	subscribers prometheus.Gauge
}

// Bus is a synchronous, non-blocking publish/subscribe hub.
type Bus struct {
	mu        sync.RWMutex
	subs      map[SubscriberID]*subscriber
	lastSubID SubscriberID
	closed    bool
	logger    *slog.Logger
	metrics   *busMetrics
}

// New creates a bus. promRegistry may be nil to disable metrics.
func New(promRegistry prometheus.Registerer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		subs:   make(map[SubscriberID]*subscriber),
		logger: logger.With("component", "eventbus"),
	}
	if promRegistry != nil {
		b.initMetrics(promRegistry)
	}
	return b
}

func (b *Bus) initMetrics(reg prometheus.Registerer) {
	m := &busMetrics{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cityledger",
			Name:      "eventbus_delivered_total",
			Help:      "Events delivered to live subscribers.",
		}, []string{"name"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cityledger",
			Name:      "eventbus_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}, []string{"name"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cityledger",
			Name:      "eventbus_subscribers",
			Help:      "Current live subscribers.",
		}),
	}
	reg.MustRegister(m.delivered, m.dropped, m.subscribers)
	b.metrics = m
}

// Subscribe registers a subscriber for the given event names (all events
// when none are given). The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe(buffer int, names ...string) (SubscriberID, <-chan domain.EventRecord) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{
		ch:    make(chan domain.EventRecord, buffer),
		names: make(map[string]bool, len(names)),
	}
	for _, n := range names {
		sub.names[n] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return 0, sub.ch
	}
	b.lastSubID++
	id := b.lastSubID
	b.subs[id] = sub
	if b.metrics != nil {
		b.metrics.subscribers.Inc()
	}
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once.
func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	if b.metrics != nil {
		b.metrics.subscribers.Dec()
	}
}

// Publish delivers evts to every interested subscriber without blocking.
func (b *Bus) Publish(evts ...domain.EventRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, evt := range evts {
		for id, sub := range b.subs {
			if !sub.wants(evt.Name) {
				continue
			}
			select {
			case sub.ch <- evt:
				if b.metrics != nil {
					b.metrics.delivered.WithLabelValues(evt.Name).Inc()
				}
			default:
				if b.metrics != nil {
					b.metrics.dropped.WithLabelValues(evt.Name).Inc()
				}
				b.logger.Warn("subscriber buffer full, event dropped",
					"subscriber", id, "event", evt.Name, "seq", evt.Seq)
			}
		}
	}
}

// Close unsubscribes everyone. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	if b.metrics != nil {
		b.metrics.subscribers.Set(0)
	}
}
