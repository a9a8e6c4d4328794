package governance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/app/reputation"
	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/access"
	"github.com/tutu-network/cityledger/internal/infra/memstore"
	"github.com/tutu-network/cityledger/internal/infra/oracle"
)

const (
	admin    domain.Identity = "admin"
	oracleID domain.Identity = "oracle"
)

type harness struct {
	svc   *Service
	store domain.Store
	now   time.Time
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func as(id domain.Identity) context.Context {
	return domain.WithCaller(context.Background(), id)
}

// newHarness builds a service over an in-memory store with a fixed clock.
// Contribution points map one-to-one onto voting power: a citizen rewarded
// n points votes with weight n+1.
func newHarness(t *testing.T, totalSupply uint64) *harness {
	t.Helper()
	h := &harness{
		store: memstore.New(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { h.store.Close() })

	deps := app.Deps{
		Store:  h.store,
		Access: access.NewRoles(admin, oracleID),
		Now:    func() time.Time { return h.now },
	}
	rep := reputation.New(reputation.Config{Baseline: 100, ContributionWeight: 100, VotingPowerDivisor: 100})
	h.svc = NewService(deps, rep, oracle.Static{}, DefaultConfig(totalSupply))
	return h
}

// grantPower gives citizen the voting power want.
func (h *harness) grantPower(t *testing.T, citizen domain.Identity, want uint64) {
	t.Helper()
	p, err := h.svc.RewardContribution(as(oracleID), citizen, want-1)
	require.NoError(t, err)
	require.Equal(t, want, p.VotingPower)
}

func eventNames(t *testing.T, s domain.Store) []string {
	t.Helper()
	recs, err := app.ListEvents(context.Background(), s, nil, 0)
	require.NoError(t, err)
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Name)
	}
	return names
}

// ─── Proposals ──────────────────────────────────────────────────────────────

func TestCreateProposal(t *testing.T) {
	h := newHarness(t, 1000)

	id, err := h.svc.CreateProposal(as("alice"), "Bike lanes", "Paint lanes on Main St", 5000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)

	id2, err := h.svc.CreateProposal(as("bob"), "Parks", "", 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id2)

	p, err := h.svc.GetProposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalActive, p.Status)
	assert.Equal(t, domain.Identity("alice"), p.Proposer)
	assert.Equal(t, uint64(5000), p.Budget)
	assert.Equal(t, h.now.Add(7*24*time.Hour), p.ExecutionTime)
	assert.Equal(t, oracle.DefaultRecommendation, p.AIRecommendation)
	assert.Zero(t, p.TotalVotes())

	prof, err := h.svc.Profile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), prof.ReputationScore)
	assert.Equal(t, uint32(1), prof.ProposalsSubmitted)

	assert.Equal(t, []string{"ProposalCreated", "ProposalCreated"}, eventNames(t, h.store))
}

func TestCreateProposal_NoCaller(t *testing.T) {
	h := newHarness(t, 1000)

	_, err := h.svc.CreateProposal(context.Background(), "x", "y", 1)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, eventNames(t, h.store))
}

func TestGetProposal_NotFound(t *testing.T) {
	h := newHarness(t, 1000)

	_, err := h.svc.GetProposal(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// ─── Voting ─────────────────────────────────────────────────────────────────

func TestCastVote_ExactlyOnce(t *testing.T) {
	h := newHarness(t, 1000)
	id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
	require.NoError(t, err)

	require.NoError(t, h.svc.CastVote(as("bob"), id, true))
	err = h.svc.CastVote(as("bob"), id, false)
	require.ErrorIs(t, err, domain.ErrDuplicateVote)

	p, err := h.svc.GetProposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.VotesFor)
	assert.Zero(t, p.VotesAgainst)

	voted, err := h.svc.HasVoted(context.Background(), id, "bob")
	require.NoError(t, err)
	assert.True(t, voted)

	prof, err := h.svc.Profile(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(125), prof.ReputationScore)
	assert.Equal(t, uint32(1), prof.VotesCast)

	assert.Equal(t, []string{"ProposalCreated", "VoteCast"}, eventNames(t, h.store))
}

func TestCastVote_Errors(t *testing.T) {
	h := newHarness(t, 1000)
	id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		ctx  context.Context
		id   uint32
		want error
	}{
		{"unknown proposal", as("bob"), 99, domain.ErrNotFound},
		{"no caller", context.Background(), id, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, h.svc.CastVote(tt.ctx, tt.id, true), tt.want)
		})
	}
}

func TestCastVote_AfterResolution(t *testing.T) {
	h := newHarness(t, 1000)
	id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
	require.NoError(t, err)

	h.advance(8 * 24 * time.Hour)
	_, err = h.svc.ResolveProposal(context.Background(), id)
	require.NoError(t, err)

	err = h.svc.CastVote(as("bob"), id, true)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCastVote_PowerFloor(t *testing.T) {
	h := newHarness(t, 1000)
	rep := reputation.New(reputation.Config{Baseline: 0, ContributionWeight: 0, VotingPowerDivisor: 100})
	h.svc.rep = rep

	id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
	require.NoError(t, err)

	prof, err := h.svc.Profile(context.Background(), "zero")
	require.NoError(t, err)
	require.Zero(t, prof.ReputationScore)

	require.NoError(t, h.svc.CastVote(as("zero"), id, false))
	p, err := h.svc.GetProposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.VotesAgainst)
}

func TestCastVote_UsesVotingPower(t *testing.T) {
	h := newHarness(t, 1000)
	h.grantPower(t, "whale", 40)

	id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
	require.NoError(t, err)
	require.NoError(t, h.svc.CastVote(as("whale"), id, true))

	p, err := h.svc.GetProposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), p.VotesFor)

	recs, err := app.ListEvents(context.Background(), h.store, nil, 0)
	require.NoError(t, err)
	last := recs[len(recs)-1]
	assert.Equal(t, "VoteCast", last.Name)
	assert.JSONEq(t, `{"vote":true,"voting_power":40}`, string(last.Payload))
}

// ─── Resolution ─────────────────────────────────────────────────────────────

func TestResolveProposal_TooEarly(t *testing.T) {
	h := newHarness(t, 1000)
	id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
	require.NoError(t, err)

	h.advance(7*24*time.Hour - time.Second)
	_, err = h.svc.ResolveProposal(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrTooEarly)

	h.advance(time.Second)
	_, err = h.svc.ResolveProposal(context.Background(), id)
	require.NoError(t, err)
}

func TestResolveProposal_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		votesFor uint64
		against  uint64
		want     domain.ProposalStatus
	}{
		{"below quorum", 60, 30, domain.ProposalRejected},
		{"majority for", 150, 100, domain.ProposalPassed},
		{"majority against", 100, 150, domain.ProposalRejected},
		{"tie", 100, 100, domain.ProposalRejected},
		{"exactly quorum", 51, 49, domain.ProposalPassed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1000) // quorum 100
			h.grantPower(t, "yes", tt.votesFor)
			h.grantPower(t, "no", tt.against)

			id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
			require.NoError(t, err)
			require.NoError(t, h.svc.CastVote(as("yes"), id, true))
			require.NoError(t, h.svc.CastVote(as("no"), id, false))

			h.advance(DefaultVotingWindow)
			got, err := h.svc.ResolveProposal(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			p, err := h.svc.GetProposal(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Status)
			assert.Equal(t, h.now, p.ResolvedAt)
		})
	}
}

func TestResolveProposal_Idempotent(t *testing.T) {
	h := newHarness(t, 1000)
	id, err := h.svc.CreateProposal(as("alice"), "t", "d", 1)
	require.NoError(t, err)

	h.advance(DefaultVotingWindow)
	first, err := h.svc.ResolveProposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalRejected, first)

	_, err = h.svc.ResolveProposal(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	p, err := h.svc.GetProposal(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, first, p.Status)
	assert.Equal(t, []string{"ProposalCreated", "ProposalExecuted"}, eventNames(t, h.store))
}

func TestResolveExpired(t *testing.T) {
	h := newHarness(t, 1000)
	old, err := h.svc.CreateProposal(as("alice"), "old", "", 1)
	require.NoError(t, err)

	h.advance(3 * 24 * time.Hour)
	fresh, err := h.svc.CreateProposal(as("alice"), "fresh", "", 1)
	require.NoError(t, err)

	h.advance(5 * 24 * time.Hour)
	changed, err := h.svc.ResolveExpired(context.Background())
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, old, changed[0].ID)

	p, err := h.svc.GetProposal(context.Background(), fresh)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalActive, p.Status)

	changed, err = h.svc.ResolveExpired(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changed)
}

// ─── Contributions & stats ──────────────────────────────────────────────────

func TestRewardContribution_OracleOnly(t *testing.T) {
	h := newHarness(t, 1000)

	_, err := h.svc.RewardContribution(as("alice"), "alice", 10)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	p, err := h.svc.RewardContribution(as(oracleID), "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), p.ReputationScore)
	assert.Equal(t, uint64(11), p.VotingPower)
	assert.Equal(t, []string{"ContributionRewarded"}, eventNames(t, h.store))
}

func TestStatsAndList(t *testing.T) {
	h := newHarness(t, 10)
	a, err := h.svc.CreateProposal(as("alice"), "a", "", 1)
	require.NoError(t, err)
	_, err = h.svc.CreateProposal(as("alice"), "b", "", 1)
	require.NoError(t, err)
	require.NoError(t, h.svc.CastVote(as("bob"), a, true))

	h.advance(DefaultVotingWindow)
	_, err = h.svc.ResolveProposal(context.Background(), a)
	require.NoError(t, err)

	stats, err := h.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.GovernanceStats{
		TotalProposals:    2,
		ActiveProposals:   1,
		PassedProposals:   1, // quorum 10/10 = 1
		RejectedProposals: 0,
		TotalVotesCast:    1,
	}, stats)

	all, err := h.svc.ListProposals(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Title)

	ballots, err := h.svc.Ballots(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Identity]bool{"bob": true}, ballots)
}

func TestTopCitizens(t *testing.T) {
	h := newHarness(t, 1000)
	_, err := h.svc.CreateProposal(as("alice"), "a", "", 1)
	require.NoError(t, err)
	h.grantPower(t, "bob", 5)

	top, err := h.svc.TopCitizens(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, domain.Identity("bob"), top[0].Identity)
}
