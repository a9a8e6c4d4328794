// Package metrics provides Prometheus metrics for cityledger.
// Counters, gauges and histograms for ledger operations, governance,
// the emergency fund, agents, events and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Operations ─────────────────────────────────────────────────────────────

// Operations counts mutating ledger calls by operation and outcome kind
// ("ok" or an error kind such as "DuplicateVote").
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "operations_total",
	Help:      "Total mutating ledger operations by outcome.",
}, []string{"op", "outcome"})

// OperationLatency tracks the duration of mutating calls, store commit included.
var OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "cityledger",
	Name:      "operation_latency_seconds",
	Help:      "Mutating ledger operation duration in seconds.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
}, []string{"op"})

// ─── Governance ─────────────────────────────────────────────────────────────

// VoteWeight tracks the weight carried by cast ballots.
var VoteWeight = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "vote_weight_total",
	Help:      "Total vote weight cast, by side.",
}, []string{"side"})

// ProposalsResolved tracks resolutions by final status.
var ProposalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "proposals_resolved_total",
	Help:      "Total resolved proposals by final status.",
}, []string{"status"})

// ─── Emergency fund ─────────────────────────────────────────────────────────

// FundBalance tracks the current emergency fund balance.
var FundBalance = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "cityledger",
	Name:      "fund_balance_current",
	Help:      "Current emergency fund balance.",
})

// FundContributed tracks total contributed amount.
var FundContributed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "fund_contributed_total",
	Help:      "Total amount contributed to the emergency fund.",
})

// PayoutsExecuted tracks executed payouts by trigger path ("threshold" or "direct").
var PayoutsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "payouts_executed_total",
	Help:      "Total executed emergency payouts.",
}, []string{"trigger"})

// PayoutAmount tracks total amount paid out.
var PayoutAmount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "payout_amount_total",
	Help:      "Total amount disbursed by emergency payouts.",
})

// IncidentsReported tracks reported incidents by hazard type.
var IncidentsReported = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "incidents_reported_total",
	Help:      "Total reported emergency incidents.",
}, []string{"type"})

// ─── Agents ─────────────────────────────────────────────────────────────────

// AgentDecisions tracks recorded agent decisions.
var AgentDecisions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "agent_decisions_total",
	Help:      "Total agent decisions recorded.",
})

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsEmitted tracks committed events by name.
var EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cityledger",
	Name:      "events_emitted_total",
	Help:      "Total committed ledger events.",
}, []string{"name"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "cityledger",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})
