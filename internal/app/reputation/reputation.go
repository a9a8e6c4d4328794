// Package reputation keeps citizen profiles: reputation score, the voting
// power derived from it, and participation counters.
//
// The ledger has no public entry points of its own. Governance calls it
// inside its own store transactions so a reward commits or rolls back with
// the proposal or ballot that earned it.
package reputation

import (
	"fmt"
	"math/bits"

	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/kv"
)

// Component is the store component holding citizen profiles.
const Component = "citizens"

// Activity names the participation counter bumped by Credit.
type Activity int

const (
	ActivityNone     Activity = iota
	ActivityProposal          // proposals_submitted
	ActivityVote              // votes_cast
)

// Config holds the reputation tunables.
type Config struct {
	Baseline           uint64 // Reputation of a citizen with no profile yet
	ContributionWeight uint64 // Reputation per contribution point
	VotingPowerDivisor uint64 // Reputation per unit of voting power
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		Baseline:           100,
		ContributionWeight: 5,
		VotingPowerDivisor: 100,
	}
}

// Ledger reads and credits citizen profiles.
type Ledger struct {
	cfg Config
}

// New creates a ledger. A zero divisor is treated as 1.
func New(cfg Config) *Ledger {
	if cfg.VotingPowerDivisor == 0 {
		cfg.VotingPowerDivisor = 1
	}
	return &Ledger{cfg: cfg}
}

// Default returns the profile every citizen starts with.
func (l *Ledger) Default() domain.CitizenProfile {
	return domain.CitizenProfile{
		ReputationScore: l.cfg.Baseline,
		VotingPower:     1,
	}
}

// Profile returns the stored profile of id, or Default when absent.
func (l *Ledger) Profile(tx domain.Txn, id domain.Identity) (domain.CitizenProfile, error) {
	return kv.GetOr(tx, Component, string(id), l.Default())
}

// Credit adds delta reputation to id and bumps the counter for activity.
// Voting power is left as is; only contributions recompute it.
func (l *Ledger) Credit(tx domain.Txn, id domain.Identity, delta uint64, activity Activity) (domain.CitizenProfile, error) {
	p, err := l.Profile(tx, id)
	if err != nil {
		return p, err
	}

	rep, carry := bits.Add64(p.ReputationScore, delta, 0)
	if carry != 0 {
		return p, fmt.Errorf("credit %s: reputation overflow: %w", id, domain.ErrInvalidAmount)
	}
	p.ReputationScore = rep

	switch activity {
	case ActivityProposal:
		p.ProposalsSubmitted++
	case ActivityVote:
		p.VotesCast++
	}

	if err := kv.Put(tx, Component, string(id), p); err != nil {
		return p, err
	}
	return p, nil
}

// CreditContribution records points of oracle-attested contribution for id
// and recomputes its voting power.
func (l *Ledger) CreditContribution(tx domain.Txn, id domain.Identity, points uint64) (domain.CitizenProfile, error) {
	p, err := l.Profile(tx, id)
	if err != nil {
		return p, err
	}

	hi, gain := bits.Mul64(points, l.cfg.ContributionWeight)
	if hi != 0 {
		return p, fmt.Errorf("contribution %d points: %w", points, domain.ErrInvalidAmount)
	}
	rep, carry := bits.Add64(p.ReputationScore, gain, 0)
	if carry != 0 {
		return p, fmt.Errorf("contribution %s: reputation overflow: %w", id, domain.ErrInvalidAmount)
	}
	contrib, carry := bits.Add64(p.AIContributions, points, 0)
	if carry != 0 {
		return p, fmt.Errorf("contribution %s: counter overflow: %w", id, domain.ErrInvalidAmount)
	}

	p.ReputationScore = rep
	p.AIContributions = contrib
	p.VotingPower = l.VotingPower(rep)

	if err := kv.Put(tx, Component, string(id), p); err != nil {
		return p, err
	}
	return p, nil
}

// VotingPower derives voting power from a reputation score. Never below 1.
func (l *Ledger) VotingPower(reputation uint64) uint64 {
	return max(1, reputation/l.cfg.VotingPowerDivisor)
}
