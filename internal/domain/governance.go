package domain

import (
	"fmt"
	"time"
)

// ProposalStatus represents the lifecycle of a proposal.
type ProposalStatus int

const (
	ProposalActive   ProposalStatus = iota // Open for voting
	ProposalPassed                         // Quorum met + majority approved
	ProposalRejected                       // Below quorum, tie, or majority against
	ProposalExecuted                       // Reserved; no operation enters it
)

var proposalStatusNames = map[ProposalStatus]string{
	ProposalActive:   "Active",
	ProposalPassed:   "Passed",
	ProposalRejected: "Rejected",
	ProposalExecuted: "Executed",
}

// String returns a human-readable status.
func (s ProposalStatus) String() string {
	if n, ok := proposalStatusNames[s]; ok {
		return n
	}
	return "Unknown"
}

func (s ProposalStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ProposalStatus) UnmarshalText(b []byte) error {
	v, err := ParseProposalStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseProposalStatus parses the name produced by String.
func ParseProposalStatus(name string) (ProposalStatus, error) {
	for s, n := range proposalStatusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown proposal status %q", name)
}

// Proposal is a citizen-governance proposal.
type Proposal struct {
	ID               uint32         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Proposer         Identity       `json:"proposer"`
	VotesFor         uint64         `json:"votes_for"`
	VotesAgainst     uint64         `json:"votes_against"`
	Status           ProposalStatus `json:"status"`
	ExecutionTime    time.Time      `json:"execution_time"` // Voting deadline
	Budget           uint64         `json:"budget"`
	AIRecommendation string         `json:"ai_recommendation"`
	CreatedAt        time.Time      `json:"created_at"`
	ResolvedAt       time.Time      `json:"resolved_at,omitzero"`
}

// TotalVotes returns the accumulated weight on both sides.
func (p Proposal) TotalVotes() uint64 { return p.VotesFor + p.VotesAgainst }

// CitizenProfile carries a participant's reputation and derived voting power.
type CitizenProfile struct {
	ReputationScore    uint64 `json:"reputation_score"`
	VotingPower        uint64 `json:"voting_power"`
	ProposalsSubmitted uint32 `json:"proposals_submitted"`
	VotesCast          uint32 `json:"votes_cast"`
	AIContributions    uint64 `json:"ai_contributions"`
}

// Weight returns the vote weight for this profile. Never below 1.
func (p CitizenProfile) Weight() uint64 {
	return max(1, p.VotingPower)
}

// GovernanceStats provides an overview of governance activity.
type GovernanceStats struct {
	TotalProposals    int `json:"total_proposals"`
	ActiveProposals   int `json:"active_proposals"`
	PassedProposals   int `json:"passed_proposals"`
	RejectedProposals int `json:"rejected_proposals"`
	TotalVotesCast    int `json:"total_votes_cast"`
}
