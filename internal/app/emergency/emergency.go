// Package emergency implements the incident registry and the payout
// approval engine on top of the emergency fund.
//
// Incidents are reported by anyone and verified by the oracle. Once
// verified, citizens vote on the payout; the vote that reaches the approval
// threshold executes it in the same transaction.
package emergency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/app/fund"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/fsm"
	"github.com/tutu-network/cityledger/internal/infra/kv"
	"github.com/tutu-network/cityledger/internal/infra/metrics"
)

// Store components.
const (
	IncidentsComponent     = "incidents"
	PayoutBallotsComponent = "payout_ballots"
)

const (
	DefaultVerifyThreshold = 80
	DefaultMinPayoutVotes  = 3

	maxConfidence = 100
)

// lifecycle is the incident state machine. Responding, Resolved and
// PayoutApproved are reserved.
var lifecycle = fsm.MustNew("incident",
	[]domain.IncidentStatus{
		domain.IncidentReported,
		domain.IncidentVerified,
		domain.IncidentResponding,
		domain.IncidentResolved,
		domain.IncidentPayoutApproved,
		domain.IncidentPayoutExecuted,
	},
	[]fsm.Edge[domain.IncidentStatus]{
		{From: domain.IncidentReported, To: domain.IncidentVerified},
		{From: domain.IncidentVerified, To: domain.IncidentPayoutExecuted},
	},
)

// Config configures incident verification and payout approval.
type Config struct {
	VerifyThreshold uint32 // Oracle confidence needed to verify
	MinPayoutVotes  uint32 // Approvals that trigger a payout
}

// DefaultConfig returns the standard emergency tunables.
func DefaultConfig() Config {
	return Config{
		VerifyThreshold: DefaultVerifyThreshold,
		MinPayoutVotes:  DefaultMinPayoutVotes,
	}
}

// Service is the incident registry and payout approval engine.
type Service struct {
	deps app.Deps
	cfg  Config
	fund *fund.Ledger
}

// NewService creates an emergency service drawing on ledger.
func NewService(deps app.Deps, ledger *fund.Ledger, cfg Config) *Service {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.With("component", "emergency")
	if cfg.MinPayoutVotes == 0 {
		cfg.MinPayoutVotes = 1
	}
	return &Service{deps: deps, cfg: cfg, fund: ledger}
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// ─── Incidents ──────────────────────────────────────────────────────────────

// ReportEmergency records a new incident reported by the caller.
func (s *Service) ReportEmergency(ctx context.Context, typ domain.IncidentType, location, description string, severity, affectedCitizens uint32) (uint32, error) {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return 0, err
	}
	if severity < domain.MinSeverity || severity > domain.MaxSeverity {
		return 0, fmt.Errorf("report emergency: severity %d: %w", severity, domain.ErrInvalidSeverity)
	}
	if !typ.Valid() {
		return 0, fmt.Errorf("report emergency: incident type %d: %w", typ, domain.ErrInvalidArgument)
	}

	var id uint32
	err = s.deps.Mutate(ctx, "report_emergency", func(tx domain.Txn, emit *app.Emitter) error {
		next, err := kv.NextID(tx, IncidentsComponent)
		if err != nil {
			return err
		}
		inc := domain.EmergencyIncident{
			ID:               next,
			Type:             typ,
			Location:         location,
			Description:      description,
			Reporter:         caller,
			Status:           domain.IncidentReported,
			Severity:         severity,
			ReportedAt:       s.deps.Now(),
			AffectedCitizens: affectedCitizens,
		}
		if err := s.save(tx, inc); err != nil {
			return err
		}
		emit.Emit(domain.EmergencyReported{
			IncidentID:   next,
			Reporter:     caller,
			IncidentType: typ,
			Severity:     severity,
		})
		id = next
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("report emergency: %w", err)
	}
	metrics.IncidentsReported.WithLabelValues(typ.String()).Inc()
	return id, nil
}

// OracleVerify records the oracle's assessment of an incident. The incident
// becomes Verified when confidence reaches the threshold; a lower score
// leaves it where it is. Oracle only.
func (s *Service) OracleVerify(ctx context.Context, incidentID, confidence uint32, estimatedCost uint64) error {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return err
	}
	if !s.deps.Access.IsOracle(caller) {
		return fmt.Errorf("verify incident %d: %s is not the oracle: %w", incidentID, caller, domain.ErrUnauthorized)
	}
	if confidence > maxConfidence {
		return fmt.Errorf("verify incident %d: confidence %d: %w", incidentID, confidence, domain.ErrInvalidAmount)
	}

	err = s.deps.Mutate(ctx, "oracle_verify", func(tx domain.Txn, emit *app.Emitter) error {
		inc, err := s.load(tx, incidentID)
		if err != nil {
			return err
		}
		// Verification is open until the incident leaves the payout path.
		if lifecycle.Terminal(inc.Status) {
			return fmt.Errorf("incident %d is %s: %w", incidentID, inc.Status, domain.ErrInvalidState)
		}

		inc.AIConfidence = confidence
		inc.EstimatedCost = estimatedCost
		if inc.Status == domain.IncidentReported && confidence >= s.cfg.VerifyThreshold {
			if err := lifecycle.Check(inc.Status, domain.IncidentVerified); err != nil {
				return err
			}
			inc.Status = domain.IncidentVerified
			inc.VerifiedAt = s.deps.Now()
		}
		if err := s.save(tx, inc); err != nil {
			return err
		}
		emit.Emit(domain.IncidentVerifiedEvent{
			IncidentID:    incidentID,
			Confidence:    confidence,
			EstimatedCost: estimatedCost,
			Status:        inc.Status,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("verify incident %d: %w", incidentID, err)
	}
	return nil
}

// ─── Payouts ────────────────────────────────────────────────────────────────

// VoteForPayout records the caller's single ballot on a verified incident's
// payout. The approval that reaches the threshold executes the payout in the
// same transaction; if the payout fails the ballot is not recorded either.
// Reports whether the payout executed.
func (s *Service) VoteForPayout(ctx context.Context, incidentID uint32, approve bool) (bool, error) {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return false, err
	}

	var paid payout
	var executed bool
	err = s.deps.Mutate(ctx, "vote_for_payout", func(tx domain.Txn, emit *app.Emitter) error {
		inc, err := s.load(tx, incidentID)
		if err != nil {
			return err
		}
		if err := lifecycle.Require(inc.Status, domain.IncidentVerified); err != nil {
			return err
		}

		ballotKey := kv.PairKey(incidentID, string(caller))
		voted, err := tx.Has(PayoutBallotsComponent, ballotKey)
		if err != nil {
			return err
		}
		if voted {
			return fmt.Errorf("%s on incident %d: %w", caller, incidentID, domain.ErrDuplicateVote)
		}

		tally, err := s.tally(tx, incidentID)
		if err != nil {
			return err
		}
		if approve {
			tally.Approvals++
		} else {
			tally.Rejections++
		}

		if err := kv.Put(tx, PayoutBallotsComponent, ballotKey, approve); err != nil {
			return err
		}
		emit.Emit(domain.PayoutVoteCast{
			IncidentID: incidentID,
			Voter:      caller,
			Approve:    approve,
			Approvals:  tally.Approvals,
		})

		if !approve || tally.Approvals < int(s.cfg.MinPayoutVotes) {
			return nil
		}
		paid, err = s.executePayout(tx, emit, inc)
		if err != nil {
			return err
		}
		executed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("vote on payout %d: %w", incidentID, err)
	}
	if executed {
		s.observePayout("threshold", paid)
	}
	return executed, nil
}

// ExecutePayout pays out a verified incident directly, without waiting
// for the approval threshold.
func (s *Service) ExecutePayout(ctx context.Context, incidentID uint32) error {
	var paid payout
	err := s.deps.Mutate(ctx, "execute_payout", func(tx domain.Txn, emit *app.Emitter) error {
		inc, err := s.load(tx, incidentID)
		if err != nil {
			return err
		}
		if err := lifecycle.Require(inc.Status, domain.IncidentVerified); err != nil {
			return err
		}
		paid, err = s.executePayout(tx, emit, inc)
		return err
	})
	if err != nil {
		return fmt.Errorf("execute payout %d: %w", incidentID, err)
	}
	s.observePayout("direct", paid)
	return nil
}

// executePayout debits the fund by the incident's estimated cost and marks
// it paid. Shared by the threshold and direct paths; runs inside their
// transaction.
func (s *Service) executePayout(tx domain.Txn, emit *app.Emitter, inc domain.EmergencyIncident) (payout, error) {
	if err := lifecycle.Check(inc.Status, domain.IncidentPayoutExecuted); err != nil {
		return payout{}, err
	}
	amount := inc.EstimatedCost
	st, err := s.fund.Disburse(tx, amount, inc.Reporter)
	if err != nil {
		return payout{}, err
	}

	now := s.deps.Now()
	inc.Status = domain.IncidentPayoutExecuted
	inc.ActualCost = amount
	inc.ResponseTime = max(0, now.Sub(inc.ReportedAt))
	if err := s.save(tx, inc); err != nil {
		return payout{}, err
	}
	emit.Emit(domain.EmergencyPayout{IncidentID: inc.ID, Amount: amount, Recipient: inc.Reporter})
	return payout{incidentID: inc.ID, amount: amount, balance: st.Balance}, nil
}

// payout describes a disbursement staged by executePayout.
type payout struct {
	incidentID uint32
	amount     uint64
	balance    uint64
}

func (s *Service) observePayout(trigger string, p payout) {
	metrics.PayoutsExecuted.WithLabelValues(trigger).Inc()
	metrics.PayoutAmount.Add(float64(p.amount))
	metrics.FundBalance.Set(float64(p.balance))
	s.deps.Logger.Info("emergency payout executed",
		"incident", p.incidentID, "amount", p.amount, "trigger", trigger)
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetIncident returns an incident by id.
func (s *Service) GetIncident(ctx context.Context, incidentID uint32) (domain.EmergencyIncident, error) {
	var inc domain.EmergencyIncident
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		inc, err = s.load(tx, incidentID)
		return err
	})
	return inc, err
}

// ListIncidents returns incidents in id order, filtered by status when
// status is non-nil.
func (s *Service) ListIncidents(ctx context.Context, status *domain.IncidentStatus) ([]domain.EmergencyIncident, error) {
	var all []domain.EmergencyIncident
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		all, err = kv.List[domain.EmergencyIncident](tx, IncidentsComponent, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.EmergencyIncident, 0, len(all))
	for _, inc := range all {
		if status == nil || inc.Status == *status {
			out = append(out, inc)
		}
	}
	return out, nil
}

// PayoutApprovals returns the ballot tally on an incident.
func (s *Service) PayoutApprovals(ctx context.Context, incidentID uint32) (domain.PayoutTally, error) {
	var tally domain.PayoutTally
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		if _, err := s.load(tx, incidentID); err != nil {
			return err
		}
		var err error
		tally, err = s.tally(tx, incidentID)
		return err
	})
	return tally, err
}

// FundStats returns the fund projection including the incident count.
func (s *Service) FundStats(ctx context.Context) (domain.FundStats, error) {
	var stats domain.FundStats
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		st, err := s.fund.State(tx)
		if err != nil {
			return err
		}
		n, err := kv.Count(tx, IncidentsComponent)
		if err != nil {
			return err
		}
		stats = domain.FundStats{
			Balance:            st.Balance,
			TotalContributions: st.TotalContributions,
			TotalPayouts:       st.TotalPayouts,
			IncidentCount:      uint32(n),
		}
		return nil
	})
	return stats, err
}

func (s *Service) tally(tx domain.Txn, incidentID uint32) (domain.PayoutTally, error) {
	tally := domain.PayoutTally{IncidentID: incidentID, Required: s.cfg.MinPayoutVotes}
	err := tx.Scan(PayoutBallotsComponent, kv.PairPrefix(incidentID), func(key string, raw []byte) error {
		var approve bool
		if err := json.Unmarshal(raw, &approve); err != nil {
			return fmt.Errorf("decode ballot %s: %w", key, err)
		}
		if approve {
			tally.Approvals++
		} else {
			tally.Rejections++
		}
		return nil
	})
	return tally, err
}

func (s *Service) load(tx domain.Txn, id uint32) (domain.EmergencyIncident, error) {
	inc, found, err := kv.Get[domain.EmergencyIncident](tx, IncidentsComponent, kv.IDKey(id))
	if err != nil {
		return inc, err
	}
	if !found {
		return inc, fmt.Errorf("incident %d: %w", id, domain.ErrNotFound)
	}
	return inc, nil
}

func (s *Service) save(tx domain.Txn, inc domain.EmergencyIncident) error {
	return kv.Put(tx, IncidentsComponent, kv.IDKey(inc.ID), inc)
}
