// Package governance implements reputation-weighted voting on citizen
// proposals.
//
// Any citizen may propose. Others vote once each, weighted by their voting
// power. After the voting window closes anyone may resolve the proposal:
// below quorum it is rejected, otherwise a strict majority of weight passes
// it.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"time"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/app/reputation"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/fsm"
	"github.com/tutu-network/cityledger/internal/infra/kv"
	"github.com/tutu-network/cityledger/internal/infra/metrics"
)

// Store components.
const (
	ProposalsComponent = "proposals"
	BallotsComponent   = "ballots"
)

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// DefaultVotingWindow is how long a proposal stays open for voting.
	DefaultVotingWindow = 7 * 24 * time.Hour

	// DefaultQuorumDivisor makes quorum a tenth of total supply.
	DefaultQuorumDivisor = 10

	DefaultProposalReward = 100
	DefaultVoteReward     = 25
)

// lifecycle is the proposal state machine. Executed is reserved.
var lifecycle = fsm.MustNew("proposal",
	[]domain.ProposalStatus{
		domain.ProposalActive,
		domain.ProposalPassed,
		domain.ProposalRejected,
		domain.ProposalExecuted,
	},
	[]fsm.Edge[domain.ProposalStatus]{
		{From: domain.ProposalActive, To: domain.ProposalPassed},
		{From: domain.ProposalActive, To: domain.ProposalRejected},
	},
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures the governance service.
type Config struct {
	TotalSupply    uint64        // Fixed at construction; quorum base
	QuorumDivisor  uint64        // quorum = TotalSupply / QuorumDivisor
	VotingWindow   time.Duration // Proposal open period
	ProposalReward uint64        // Reputation credited to a proposer
	VoteReward     uint64        // Reputation credited to a voter
}

// DefaultConfig returns the standard governance tunables for totalSupply.
func DefaultConfig(totalSupply uint64) Config {
	return Config{
		TotalSupply:    totalSupply,
		QuorumDivisor:  DefaultQuorumDivisor,
		VotingWindow:   DefaultVotingWindow,
		ProposalReward: DefaultProposalReward,
		VoteReward:     DefaultVoteReward,
	}
}

// Quorum returns the total vote weight a proposal needs to be decided.
func (c Config) Quorum() uint64 {
	if c.QuorumDivisor == 0 {
		return c.TotalSupply
	}
	return c.TotalSupply / c.QuorumDivisor
}

// ─── Service ────────────────────────────────────────────────────────────────

// Service is the proposal registry and voting engine.
type Service struct {
	deps    app.Deps
	cfg     Config
	rep     *reputation.Ledger
	advisor domain.Advisor
}

// NewService creates a governance service. advisor may be nil, in which
// case proposals carry no recommendation.
func NewService(deps app.Deps, rep *reputation.Ledger, advisor domain.Advisor, cfg Config) *Service {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.With("component", "governance")
	return &Service{deps: deps, cfg: cfg, rep: rep, advisor: advisor}
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// ─── Proposal Lifecycle ─────────────────────────────────────────────────────

// CreateProposal opens a new proposal authored by the caller and rewards
// the proposer.
func (s *Service) CreateProposal(ctx context.Context, title, description string, budget uint64) (uint32, error) {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return 0, err
	}

	// The advisor is consulted outside the transaction; its text is opaque.
	var recommendation string
	if s.advisor != nil {
		recommendation, err = s.advisor.Recommend(ctx, title, description, budget)
		if err != nil {
			s.deps.Logger.Warn("advisor unavailable, proposal created without recommendation",
				"proposer", caller, "error", err)
			recommendation = ""
		}
	}

	var id uint32
	err = s.deps.Mutate(ctx, "create_proposal", func(tx domain.Txn, emit *app.Emitter) error {
		next, err := kv.NextID(tx, ProposalsComponent)
		if err != nil {
			return err
		}
		id = next
		now := s.deps.Now()
		p := domain.Proposal{
			ID:               id,
			Title:            title,
			Description:      description,
			Proposer:         caller,
			Status:           domain.ProposalActive,
			ExecutionTime:    now.Add(s.cfg.VotingWindow),
			Budget:           budget,
			AIRecommendation: recommendation,
			CreatedAt:        now,
		}
		if err := kv.Put(tx, ProposalsComponent, kv.IDKey(id), p); err != nil {
			return err
		}
		if _, err := s.rep.Credit(tx, caller, s.cfg.ProposalReward, reputation.ActivityProposal); err != nil {
			return err
		}
		emit.Emit(domain.ProposalCreated{ProposalID: id, Proposer: caller, Title: title})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create proposal: %w", err)
	}
	return id, nil
}

// CastVote records the caller's single ballot on an active proposal,
// weighted by the caller's current voting power.
func (s *Service) CastVote(ctx context.Context, proposalID uint32, support bool) error {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return err
	}

	var weight uint64
	err = s.deps.Mutate(ctx, "cast_vote", func(tx domain.Txn, emit *app.Emitter) error {
		p, err := s.load(tx, proposalID)
		if err != nil {
			return err
		}
		if err := lifecycle.Require(p.Status, domain.ProposalActive); err != nil {
			return err
		}

		ballotKey := kv.PairKey(proposalID, string(caller))
		voted, err := tx.Has(BallotsComponent, ballotKey)
		if err != nil {
			return err
		}
		if voted {
			return fmt.Errorf("%s on proposal %d: %w", caller, proposalID, domain.ErrDuplicateVote)
		}

		profile, err := s.rep.Profile(tx, caller)
		if err != nil {
			return err
		}
		weight = profile.Weight()

		tally := &p.VotesAgainst
		if support {
			tally = &p.VotesFor
		}
		sum, carry := bits.Add64(*tally, weight, 0)
		if carry != 0 {
			return fmt.Errorf("tally overflow on proposal %d: %w", proposalID, domain.ErrInvalidAmount)
		}
		*tally = sum

		if err := kv.Put(tx, BallotsComponent, ballotKey, support); err != nil {
			return err
		}
		if err := kv.Put(tx, ProposalsComponent, kv.IDKey(proposalID), p); err != nil {
			return err
		}
		if _, err := s.rep.Credit(tx, caller, s.cfg.VoteReward, reputation.ActivityVote); err != nil {
			return err
		}
		emit.Emit(domain.VoteCast{ProposalID: proposalID, Voter: caller, Vote: support, VotingPower: weight})
		return nil
	})
	if err != nil {
		return fmt.Errorf("vote on proposal %d: %w", proposalID, err)
	}

	side := "against"
	if support {
		side = "for"
	}
	metrics.VoteWeight.WithLabelValues(side).Add(float64(weight))
	return nil
}

// ResolveProposal closes an Active proposal whose voting window has ended.
// Anyone may call it; it succeeds at most once per proposal.
func (s *Service) ResolveProposal(ctx context.Context, proposalID uint32) (domain.ProposalStatus, error) {
	var status domain.ProposalStatus
	err := s.deps.Mutate(ctx, "resolve_proposal", func(tx domain.Txn, emit *app.Emitter) error {
		p, err := s.load(tx, proposalID)
		if err != nil {
			return err
		}
		if err := lifecycle.Require(p.Status, domain.ProposalActive); err != nil {
			return err
		}
		now := s.deps.Now()
		if now.Before(p.ExecutionTime) {
			return fmt.Errorf("proposal %d closes at %s: %w",
				proposalID, p.ExecutionTime.Format(time.RFC3339), domain.ErrTooEarly)
		}

		status = s.outcome(p)
		if err := lifecycle.Check(p.Status, status); err != nil {
			return err
		}
		p.Status = status
		p.ResolvedAt = now
		if err := kv.Put(tx, ProposalsComponent, kv.IDKey(proposalID), p); err != nil {
			return err
		}
		emit.Emit(domain.ProposalExecutedEvent{ProposalID: proposalID, Status: status})
		return nil
	})
	if err != nil {
		return status, fmt.Errorf("resolve proposal %d: %w", proposalID, err)
	}
	metrics.ProposalsResolved.WithLabelValues(status.String()).Inc()
	return status, nil
}

// outcome decides a closed proposal. Ties and below-quorum turnout reject.
func (s *Service) outcome(p domain.Proposal) domain.ProposalStatus {
	// An overflowing total is above any quorum.
	total, carry := bits.Add64(p.VotesFor, p.VotesAgainst, 0)
	if carry == 0 && total < s.cfg.Quorum() {
		return domain.ProposalRejected
	}
	if p.VotesFor > p.VotesAgainst {
		return domain.ProposalPassed
	}
	return domain.ProposalRejected
}

// ResolveExpired resolves every Active proposal past its deadline, each in
// its own transaction. Returns the proposals that changed state.
func (s *Service) ResolveExpired(ctx context.Context) ([]domain.Proposal, error) {
	activeStatus := domain.ProposalActive
	active, err := s.ListProposals(ctx, &activeStatus)
	if err != nil {
		return nil, err
	}

	now := s.deps.Now()
	var changed []domain.Proposal
	for _, p := range active {
		if now.Before(p.ExecutionTime) {
			continue
		}
		status, err := s.ResolveProposal(ctx, p.ID)
		if errors.Is(err, domain.ErrInvalidState) {
			continue // resolved concurrently
		}
		if err != nil {
			return changed, err
		}
		p.Status = status
		p.ResolvedAt = now
		changed = append(changed, p)
	}
	if len(changed) > 0 {
		s.deps.Logger.Info("expired proposals resolved", "count", len(changed))
	}
	return changed, nil
}

// RewardContribution credits oracle-attested contribution points to
// citizen and recomputes its voting power. Oracle only.
func (s *Service) RewardContribution(ctx context.Context, citizen domain.Identity, points uint64) (domain.CitizenProfile, error) {
	caller, err := domain.CallerFromContext(ctx)
	if err != nil {
		return domain.CitizenProfile{}, err
	}
	if !s.deps.Access.IsOracle(caller) {
		return domain.CitizenProfile{}, fmt.Errorf("reward contribution: %s is not the oracle: %w", caller, domain.ErrUnauthorized)
	}
	if citizen == "" {
		return domain.CitizenProfile{}, fmt.Errorf("reward contribution: empty citizen: %w", domain.ErrInvalidArgument)
	}

	var profile domain.CitizenProfile
	err = s.deps.Mutate(ctx, "reward_contribution", func(tx domain.Txn, emit *app.Emitter) error {
		p, err := s.rep.CreditContribution(tx, citizen, points)
		if err != nil {
			return err
		}
		profile = p
		emit.Emit(domain.ContributionRewarded{
			Citizen:         citizen,
			Points:          points,
			ReputationScore: profile.ReputationScore,
			VotingPower:     profile.VotingPower,
		})
		return nil
	})
	if err != nil {
		return domain.CitizenProfile{}, fmt.Errorf("reward contribution: %w", err)
	}
	return profile, nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetProposal returns a proposal by id.
func (s *Service) GetProposal(ctx context.Context, proposalID uint32) (domain.Proposal, error) {
	var p domain.Proposal
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		p, err = s.load(tx, proposalID)
		return err
	})
	return p, err
}

// ListProposals returns proposals in id order, filtered by status when
// status is non-nil.
func (s *Service) ListProposals(ctx context.Context, status *domain.ProposalStatus) ([]domain.Proposal, error) {
	var all []domain.Proposal
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		all, err = kv.List[domain.Proposal](tx, ProposalsComponent, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	result := make([]domain.Proposal, 0, len(all))
	for _, p := range all {
		if status == nil || p.Status == *status {
			result = append(result, p)
		}
	}
	return result, nil
}

// HasVoted reports whether voter has a ballot on proposalID.
func (s *Service) HasVoted(ctx context.Context, proposalID uint32, voter domain.Identity) (bool, error) {
	var voted bool
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		voted, err = tx.Has(BallotsComponent, kv.PairKey(proposalID, string(voter)))
		return err
	})
	return voted, err
}

// Ballots returns every ballot on proposalID keyed by voter.
func (s *Service) Ballots(ctx context.Context, proposalID uint32) (map[domain.Identity]bool, error) {
	out := make(map[domain.Identity]bool)
	prefix := kv.PairPrefix(proposalID)
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		return tx.Scan(BallotsComponent, prefix, func(key string, raw []byte) error {
			out[domain.Identity(key[len(prefix):])] = string(raw) == "true"
			return nil
		})
	})
	return out, err
}

// Profile returns the citizen profile of id, or the default when absent.
func (s *Service) Profile(ctx context.Context, id domain.Identity) (domain.CitizenProfile, error) {
	var p domain.CitizenProfile
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		var err error
		p, err = s.rep.Profile(tx, id)
		return err
	})
	return p, err
}

// Stats returns aggregate governance metrics.
func (s *Service) Stats(ctx context.Context) (domain.GovernanceStats, error) {
	var stats domain.GovernanceStats
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		props, err := kv.List[domain.Proposal](tx, ProposalsComponent, "")
		if err != nil {
			return err
		}
		stats.TotalProposals = len(props)
		for _, p := range props {
			switch p.Status {
			case domain.ProposalActive:
				stats.ActiveProposals++
			case domain.ProposalPassed:
				stats.PassedProposals++
			case domain.ProposalRejected:
				stats.RejectedProposals++
			}
		}
		return tx.Scan(BallotsComponent, "", func(string, []byte) error {
			stats.TotalVotesCast++
			return nil
		})
	})
	return stats, err
}

// TopCitizens returns up to n profiles with the highest reputation.
func (s *Service) TopCitizens(ctx context.Context, n int) ([]CitizenEntry, error) {
	var entries []CitizenEntry
	err := s.deps.Store.View(ctx, func(tx domain.Txn) error {
		return tx.Scan(reputation.Component, "", func(key string, raw []byte) error {
			var p domain.CitizenProfile
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("decode profile %s: %w", key, err)
			}
			entries = append(entries, CitizenEntry{Identity: domain.Identity(key), Profile: p})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Profile.ReputationScore > entries[j].Profile.ReputationScore
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// CitizenEntry pairs an identity with its profile.
type CitizenEntry struct {
	Identity domain.Identity       `json:"identity"`
	Profile  domain.CitizenProfile `json:"profile"`
}

func (s *Service) load(tx domain.Txn, id uint32) (domain.Proposal, error) {
	p, found, err := kv.Get[domain.Proposal](tx, ProposalsComponent, kv.IDKey(id))
	if err != nil {
		return p, err
	}
	if !found {
		return p, fmt.Errorf("proposal %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}
