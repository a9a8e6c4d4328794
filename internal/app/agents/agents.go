// Package agents implements the registry of autonomous city agents, their
// append-only decision log and aggregate impact counters.
package agents

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/kv"
	"github.com/tutu-network/cityledger/internal/infra/metrics"
)

// Store components.
const (
	AgentsComponent    = "agents"
	DecisionsComponent = "decisions"
	TotalsComponent    = "agent_totals"

	totalsKey = "totals"
)

// Config holds the registration defaults.
type Config struct {
	InitialPerformance uint32
	InitialConfidence  uint32
}

// DefaultConfig returns the standard registration defaults.
func DefaultConfig() Config {
	return Config{InitialPerformance: 50, InitialConfidence: 75}
}

// Registry is the agent registry.
type Registry struct {
	deps app.Deps
	cfg  Config
}

// NewRegistry creates an agent registry.
func NewRegistry(deps app.Deps, cfg Config) *Registry {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.With("component", "agents")
	return &Registry{deps: deps, cfg: cfg}
}

// totals is the persisted form of the registry-wide impact counters.
type totals struct {
	EnergySaved   uint64 `json:"energy_saved"`
	CostReduction uint64 `json:"cost_reduction"`
}

// RegisterAgent adds a new agent in the Learning state. Admin only.
func (r *Registry) RegisterAgent(ctx context.Context, name, zone, specialization string) (uint32, error) {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return 0, err
	}
	if !r.deps.Access.IsAdmin(caller) {
		return 0, fmt.Errorf("register agent: %s is not the admin: %w", caller, domain.ErrUnauthorized)
	}

	var id uint32
	err = r.deps.Mutate(ctx, "register_agent", func(tx domain.Txn, emit *app.Emitter) error {
		next, err := kv.NextID(tx, AgentsComponent)
		if err != nil {
			return err
		}
		agent := domain.AIAgent{
			ID:               next,
			Name:             name,
			Zone:             zone,
			Status:           domain.AgentLearning,
			PerformanceScore: min(r.cfg.InitialPerformance, domain.MaxPerformanceScore),
			LastUpdate:       r.deps.Now(),
			Specialization:   specialization,
			ConfidenceLevel:  r.cfg.InitialConfidence,
		}
		if err := r.save(tx, agent); err != nil {
			return err
		}
		emit.Emit(domain.AgentRegistered{AgentID: next, Name: name, Zone: zone})
		id = next
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("register agent: %w", err)
	}
	return id, nil
}

// decisionBump is the performance gain for a decision of the given impact.
func decisionBump(impact uint32) uint64 {
	switch {
	case impact > 80:
		return 5
	case impact > 60:
		return 2
	default:
		return 0
	}
}

// bumpPerformance adds delta to score, clamped to MaxPerformanceScore.
func bumpPerformance(score uint32, delta uint64) uint32 {
	return uint32(min(uint64(score)+delta, domain.MaxPerformanceScore))
}

// RecordDecision appends a decision to an agent's log and marks it Active.
func (r *Registry) RecordDecision(ctx context.Context, agentID uint32, decisionType, parameters string, impactScore uint32) error {
	err := r.deps.Mutate(ctx, "record_decision", func(tx domain.Txn, emit *app.Emitter) error {
		agent, err := r.load(tx, agentID)
		if err != nil {
			return err
		}
		now := r.deps.Now()
		decision := domain.AgentDecision{
			AgentID:      agentID,
			Seq:          agent.DecisionsMade,
			DecisionType: decisionType,
			Parameters:   parameters,
			ImpactScore:  impactScore,
			Timestamp:    now,
		}
		if err := kv.Put(tx, DecisionsComponent, decisionKey(agentID, decision.Seq), decision); err != nil {
			return err
		}

		agent.DecisionsMade++
		agent.LastUpdate = now
		agent.Status = domain.AgentActive
		agent.PerformanceScore = bumpPerformance(agent.PerformanceScore, decisionBump(impactScore))
		if err := r.save(tx, agent); err != nil {
			return err
		}
		emit.Emit(domain.DecisionMade{AgentID: agentID, DecisionType: decisionType, ImpactScore: impactScore})
		return nil
	})
	if err != nil {
		return fmt.Errorf("record decision for agent %d: %w", agentID, err)
	}
	metrics.AgentDecisions.Inc()
	return nil
}

// UpdatePerformance accumulates measured savings for an agent and the
// registry totals, and raises the agent's performance score accordingly.
func (r *Registry) UpdatePerformance(ctx context.Context, agentID uint32, energySaved, costReduction uint64) error {
	err := r.deps.Mutate(ctx, "update_performance", func(tx domain.Txn, emit *app.Emitter) error {
		agent, err := r.load(tx, agentID)
		if err != nil {
			return err
		}
		tot, err := kv.GetOr(tx, TotalsComponent, totalsKey, totals{})
		if err != nil {
			return err
		}

		var c [4]uint64
		agent.EnergySaved, c[0] = bits.Add64(agent.EnergySaved, energySaved, 0)
		agent.CostReduction, c[1] = bits.Add64(agent.CostReduction, costReduction, 0)
		tot.EnergySaved, c[2] = bits.Add64(tot.EnergySaved, energySaved, 0)
		tot.CostReduction, c[3] = bits.Add64(tot.CostReduction, costReduction, 0)
		if c[0]|c[1]|c[2]|c[3] != 0 {
			return fmt.Errorf("impact counters overflow: %w", domain.ErrInvalidAmount)
		}

		agent.PerformanceScore = bumpPerformance(agent.PerformanceScore, energySaved/1000+costReduction/10000)
		agent.LastUpdate = r.deps.Now()
		if err := r.save(tx, agent); err != nil {
			return err
		}
		if err := kv.Put(tx, TotalsComponent, totalsKey, tot); err != nil {
			return err
		}
		emit.Emit(domain.PerformanceUpdated{
			AgentID:          agentID,
			PerformanceScore: agent.PerformanceScore,
			EnergySaved:      agent.EnergySaved,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("update performance of agent %d: %w", agentID, err)
	}
	return nil
}

// SetStatus overrides an agent's status. Admin only; any status may be set
// from any other.
func (r *Registry) SetStatus(ctx context.Context, agentID uint32, status domain.AgentStatus) error {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return err
	}
	if !r.deps.Access.IsAdmin(caller) {
		return fmt.Errorf("set agent %d status: %s is not the admin: %w", agentID, caller, domain.ErrUnauthorized)
	}
	if !status.Valid() {
		return fmt.Errorf("set agent %d status: status %d: %w", agentID, status, domain.ErrInvalidArgument)
	}

	err = r.deps.Mutate(ctx, "set_agent_status", func(tx domain.Txn, emit *app.Emitter) error {
		agent, err := r.load(tx, agentID)
		if err != nil {
			return err
		}
		agent.Status = status
		agent.LastUpdate = r.deps.Now()
		if err := r.save(tx, agent); err != nil {
			return err
		}
		emit.Emit(domain.AgentStatusChanged{AgentID: agentID, Status: status})
		return nil
	})
	if err != nil {
		return fmt.Errorf("set agent %d status: %w", agentID, err)
	}
	return nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetAgent returns an agent by id.
func (r *Registry) GetAgent(ctx context.Context, agentID uint32) (domain.AIAgent, error) {
	var agent domain.AIAgent
	err := r.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		agent, err = r.load(tx, agentID)
		return err
	})
	return agent, err
}

// ListAgents returns every agent in id order.
func (r *Registry) ListAgents(ctx context.Context) ([]domain.AIAgent, error) {
	var out []domain.AIAgent
	err := r.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		out, err = kv.List[domain.AIAgent](tx, AgentsComponent, "")
		return err
	})
	return out, err
}

// Decisions returns an agent's decision log, oldest first. Unknown agents
// have an empty log.
func (r *Registry) Decisions(ctx context.Context, agentID uint32) ([]domain.AgentDecision, error) {
	var out []domain.AgentDecision
	err := r.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		out, err = kv.List[domain.AgentDecision](tx, DecisionsComponent, kv.PairPrefix(agentID))
		return err
	})
	if out == nil {
		out = []domain.AgentDecision{}
	}
	return out, err
}

// TotalStats returns the registry-wide impact counters.
func (r *Registry) TotalStats(ctx context.Context) (domain.AgentTotals, error) {
	var stats domain.AgentTotals
	err := r.deps.Store.View(ctx, func(tx domain.Txn) error {
		tot, err := kv.GetOr(tx, TotalsComponent, totalsKey, totals{})
		if err != nil {
			return err
		}
		n, err := kv.Count(tx, AgentsComponent)
		if err != nil {
			return err
		}
		stats = domain.AgentTotals{
			TotalEnergySaved:   tot.EnergySaved,
			TotalCostReduction: tot.CostReduction,
			AgentCount:         uint32(n),
		}
		return nil
	})
	return stats, err
}

func decisionKey(agentID, seq uint32) string {
	return kv.PairKey(agentID, kv.IDKey(seq))
}

func (r *Registry) load(tx domain.Txn, id uint32) (domain.AIAgent, error) {
	agent, found, err := kv.Get[domain.AIAgent](tx, AgentsComponent, kv.IDKey(id))
	if err != nil {
		return agent, err
	}
	if !found {
		return agent, fmt.Errorf("agent %d: %w", id, domain.ErrNotFound)
	}
	return agent, nil
}

func (r *Registry) save(tx domain.Txn, agent domain.AIAgent) error {
	return kv.Put(tx, AgentsComponent, kv.IDKey(agent.ID), agent)
}
