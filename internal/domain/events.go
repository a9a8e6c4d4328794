package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Event is a structured notification emitted by exactly one committed
// mutation. Names and fields are part of the compatibility surface consumed
// by external indexers.
type Event interface {
	EventName() string
	Topics() []Topic // Indexed key fields
	Payload() any    // Non-indexed fields, JSON encoded
}

// Topic is one indexed field of an event.
type Topic struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EventRecord is the persisted envelope of an emitted event.
type EventRecord struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Name      string          `json:"name"`
	Topics    []Topic         `json:"topics"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func idTopic(key string, id uint32) Topic {
	return Topic{Key: key, Value: strconv.FormatUint(uint64(id), 10)}
}

func identityTopic(key string, id Identity) Topic {
	return Topic{Key: key, Value: string(id)}
}

// ─── Governance ─────────────────────────────────────────────────────────────

type ProposalCreated struct {
	ProposalID uint32
	Proposer   Identity
	Title      string
}

func (ProposalCreated) EventName() string { return "ProposalCreated" }
func (e ProposalCreated) Topics() []Topic {
	return []Topic{idTopic("proposal_id", e.ProposalID), identityTopic("proposer", e.Proposer)}
}
func (e ProposalCreated) Payload() any {
	return struct {
		Title string `json:"title"`
	}{e.Title}
}

type VoteCast struct {
	ProposalID  uint32
	Voter       Identity
	Vote        bool
	VotingPower uint64
}

func (VoteCast) EventName() string { return "VoteCast" }
func (e VoteCast) Topics() []Topic {
	return []Topic{idTopic("proposal_id", e.ProposalID), identityTopic("voter", e.Voter)}
}
func (e VoteCast) Payload() any {
	return struct {
		Vote        bool   `json:"vote"`
		VotingPower uint64 `json:"voting_power"`
	}{e.Vote, e.VotingPower}
}

// ProposalExecutedEvent is emitted when a proposal is resolved, whatever the
// outcome.
type ProposalExecutedEvent struct {
	ProposalID uint32
	Status     ProposalStatus
}

func (ProposalExecutedEvent) EventName() string { return "ProposalExecuted" }
func (e ProposalExecutedEvent) Topics() []Topic {
	return []Topic{idTopic("proposal_id", e.ProposalID)}
}
func (e ProposalExecutedEvent) Payload() any {
	return struct {
		Status ProposalStatus `json:"status"`
	}{e.Status}
}

type ContributionRewarded struct {
	Citizen         Identity
	Points          uint64
	ReputationScore uint64
	VotingPower     uint64
}

func (ContributionRewarded) EventName() string { return "ContributionRewarded" }
func (e ContributionRewarded) Topics() []Topic {
	return []Topic{identityTopic("citizen", e.Citizen)}
}
func (e ContributionRewarded) Payload() any {
	return struct {
		Points          uint64 `json:"points"`
		ReputationScore uint64 `json:"reputation_score"`
		VotingPower     uint64 `json:"voting_power"`
	}{e.Points, e.ReputationScore, e.VotingPower}
}

// ─── Emergency fund ─────────────────────────────────────────────────────────

type FundContribution struct {
	Contributor Identity
	Amount      uint64
	NewBalance  uint64
}

func (FundContribution) EventName() string { return "FundContribution" }
func (e FundContribution) Topics() []Topic {
	return []Topic{identityTopic("contributor", e.Contributor)}
}
func (e FundContribution) Payload() any {
	return struct {
		Amount     uint64 `json:"amount"`
		NewBalance uint64 `json:"new_balance"`
	}{e.Amount, e.NewBalance}
}

type EmergencyReported struct {
	IncidentID   uint32
	Reporter     Identity
	IncidentType IncidentType
	Severity     uint32
}

func (EmergencyReported) EventName() string { return "EmergencyReported" }
func (e EmergencyReported) Topics() []Topic {
	return []Topic{idTopic("incident_id", e.IncidentID), identityTopic("reporter", e.Reporter)}
}
func (e EmergencyReported) Payload() any {
	return struct {
		IncidentType IncidentType `json:"incident_type"`
		Severity     uint32       `json:"severity"`
	}{e.IncidentType, e.Severity}
}

// IncidentVerifiedEvent is emitted on every oracle verification, including
// one whose confidence leaves the incident Reported.
type IncidentVerifiedEvent struct {
	IncidentID    uint32
	Confidence    uint32
	EstimatedCost uint64
	Status        IncidentStatus
}

func (IncidentVerifiedEvent) EventName() string { return "IncidentVerified" }
func (e IncidentVerifiedEvent) Topics() []Topic {
	return []Topic{idTopic("incident_id", e.IncidentID)}
}
func (e IncidentVerifiedEvent) Payload() any {
	return struct {
		Confidence    uint32         `json:"confidence"`
		EstimatedCost uint64         `json:"estimated_cost"`
		Status        IncidentStatus `json:"status"`
	}{e.Confidence, e.EstimatedCost, e.Status}
}

type PayoutVoteCast struct {
	IncidentID uint32
	Voter      Identity
	Approve    bool
	Approvals  int
}

func (PayoutVoteCast) EventName() string { return "PayoutVoteCast" }
func (e PayoutVoteCast) Topics() []Topic {
	return []Topic{idTopic("incident_id", e.IncidentID), identityTopic("voter", e.Voter)}
}
func (e PayoutVoteCast) Payload() any {
	return struct {
		Approve   bool `json:"approve"`
		Approvals int  `json:"approvals"`
	}{e.Approve, e.Approvals}
}

type EmergencyPayout struct {
	IncidentID uint32
	Amount     uint64
	Recipient  Identity
}

func (EmergencyPayout) EventName() string { return "EmergencyPayout" }
func (e EmergencyPayout) Topics() []Topic {
	return []Topic{idTopic("incident_id", e.IncidentID)}
}
func (e EmergencyPayout) Payload() any {
	return struct {
		Amount    uint64   `json:"amount"`
		Recipient Identity `json:"recipient"`
	}{e.Amount, e.Recipient}
}

// ─── Agents ─────────────────────────────────────────────────────────────────

type AgentRegistered struct {
	AgentID uint32
	Name    string
	Zone    string
}

func (AgentRegistered) EventName() string { return "AgentRegistered" }
func (e AgentRegistered) Topics() []Topic {
	return []Topic{idTopic("agent_id", e.AgentID)}
}
func (e AgentRegistered) Payload() any {
	return struct {
		Name string `json:"name"`
		Zone string `json:"zone"`
	}{e.Name, e.Zone}
}

type DecisionMade struct {
	AgentID      uint32
	DecisionType string
	ImpactScore  uint32
}

func (DecisionMade) EventName() string { return "DecisionMade" }
func (e DecisionMade) Topics() []Topic {
	return []Topic{idTopic("agent_id", e.AgentID)}
}
func (e DecisionMade) Payload() any {
	return struct {
		DecisionType string `json:"decision_type"`
		ImpactScore  uint32 `json:"impact_score"`
	}{e.DecisionType, e.ImpactScore}
}

type PerformanceUpdated struct {
	AgentID          uint32
	PerformanceScore uint32
	EnergySaved      uint64
}

func (PerformanceUpdated) EventName() string { return "PerformanceUpdated" }
func (e PerformanceUpdated) Topics() []Topic {
	return []Topic{idTopic("agent_id", e.AgentID)}
}
func (e PerformanceUpdated) Payload() any {
	return struct {
		PerformanceScore uint32 `json:"performance_score"`
		EnergySaved      uint64 `json:"energy_saved"`
	}{e.PerformanceScore, e.EnergySaved}
}

type AgentStatusChanged struct {
	AgentID uint32
	Status  AgentStatus
}

func (AgentStatusChanged) EventName() string { return "AgentStatusChanged" }
func (e AgentStatusChanged) Topics() []Topic {
	return []Topic{idTopic("agent_id", e.AgentID)}
}
func (e AgentStatusChanged) Payload() any {
	return struct {
		Status AgentStatus `json:"status"`
	}{e.Status}
}
