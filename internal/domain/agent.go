package domain

import (
	"fmt"
	"time"
)

// AgentStatus is the operating state of an autonomous city agent.
type AgentStatus int

const (
	AgentActive AgentStatus = iota
	AgentLearning
	AgentMaintenance
	AgentOffline
)

var agentStatusNames = map[AgentStatus]string{
	AgentActive:      "Active",
	AgentLearning:    "Learning",
	AgentMaintenance: "Maintenance",
	AgentOffline:     "Offline",
}

func (s AgentStatus) String() string {
	if n, ok := agentStatusNames[s]; ok {
		return n
	}
	return "Unknown"
}

// Valid reports whether s is a known status.
func (s AgentStatus) Valid() bool {
	_, ok := agentStatusNames[s]
	return ok
}

func (s AgentStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *AgentStatus) UnmarshalText(b []byte) error {
	v, err := ParseAgentStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseAgentStatus parses the name produced by String.
func ParseAgentStatus(name string) (AgentStatus, error) {
	for s, n := range agentStatusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown agent status %q", name)
}

// MaxPerformanceScore caps AIAgent.PerformanceScore.
const MaxPerformanceScore = 100

// AIAgent is a registered autonomous agent and its aggregate impact.
type AIAgent struct {
	ID               uint32      `json:"id"`
	Name             string      `json:"name"`
	Zone             string      `json:"zone"`
	Status           AgentStatus `json:"status"`
	PerformanceScore uint32      `json:"performance_score"`
	DecisionsMade    uint32      `json:"decisions_made"`
	EnergySaved      uint64      `json:"energy_saved"`
	CostReduction    uint64      `json:"cost_reduction"`
	LastUpdate       time.Time   `json:"last_update"`
	Specialization   string      `json:"specialization"`
	ConfidenceLevel  uint32      `json:"confidence_level"`
}

// AgentDecision is one append-only entry in an agent's decision log.
type AgentDecision struct {
	AgentID         uint32    `json:"agent_id"`
	Seq             uint32    `json:"seq"`
	DecisionType    string    `json:"decision_type"`
	Parameters      string    `json:"parameters"`
	ImpactScore     uint32    `json:"impact_score"`
	Timestamp       time.Time `json:"timestamp"`
	ValidationScore uint32    `json:"validation_score"`
}

// AgentTotals holds registry-wide impact counters.
type AgentTotals struct {
	TotalEnergySaved   uint64 `json:"total_energy_saved"`
	TotalCostReduction uint64 `json:"total_cost_reduction"`
	AgentCount         uint32 `json:"agent_count"`
}
