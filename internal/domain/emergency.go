package domain

import (
	"fmt"
	"time"
)

// IncidentType is one of the fixed hazard categories.
type IncidentType int

const (
	IncidentFire IncidentType = iota
	IncidentFlood
	IncidentPowerOutage
	IncidentCyberAttack
	IncidentNaturalDisaster
	IncidentMedicalEmergency
)

var incidentTypeNames = map[IncidentType]string{
	IncidentFire:             "Fire",
	IncidentFlood:            "Flood",
	IncidentPowerOutage:      "PowerOutage",
	IncidentCyberAttack:      "CyberAttack",
	IncidentNaturalDisaster:  "NaturalDisaster",
	IncidentMedicalEmergency: "MedicalEmergency",
}

func (t IncidentType) String() string {
	if n, ok := incidentTypeNames[t]; ok {
		return n
	}
	return "Unknown"
}

// Valid reports whether t is a known hazard category.
func (t IncidentType) Valid() bool {
	_, ok := incidentTypeNames[t]
	return ok
}

func (t IncidentType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *IncidentType) UnmarshalText(b []byte) error {
	v, err := ParseIncidentType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseIncidentType parses the name produced by String.
func ParseIncidentType(name string) (IncidentType, error) {
	for t, n := range incidentTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown incident type %q", name)
}

// IncidentStatus tracks an incident from report to payout. It only moves
// forward.
type IncidentStatus int

const (
	IncidentReported IncidentStatus = iota
	IncidentVerified
	IncidentResponding
	IncidentResolved
	IncidentPayoutApproved
	IncidentPayoutExecuted
)

var incidentStatusNames = map[IncidentStatus]string{
	IncidentReported:       "Reported",
	IncidentVerified:       "Verified",
	IncidentResponding:     "Responding",
	IncidentResolved:       "Resolved",
	IncidentPayoutApproved: "PayoutApproved",
	IncidentPayoutExecuted: "PayoutExecuted",
}

func (s IncidentStatus) String() string {
	if n, ok := incidentStatusNames[s]; ok {
		return n
	}
	return "Unknown"
}

func (s IncidentStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *IncidentStatus) UnmarshalText(b []byte) error {
	for st, n := range incidentStatusNames {
		if n == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown incident status %q", string(b))
}

// Severity bounds, inclusive.
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// EmergencyIncident is a reported emergency and its payout state.
type EmergencyIncident struct {
	ID               uint32         `json:"id"`
	Type             IncidentType   `json:"incident_type"`
	Location         string         `json:"location"`
	Description      string         `json:"description"`
	Reporter         Identity       `json:"reporter"`
	Status           IncidentStatus `json:"status"`
	Severity         uint32         `json:"severity"`
	EstimatedCost    uint64         `json:"estimated_cost"`
	ActualCost       uint64         `json:"actual_cost"`
	AIConfidence     uint32         `json:"ai_confidence"`
	ReportedAt       time.Time      `json:"timestamp"`
	VerifiedAt       time.Time      `json:"verified_at,omitzero"`
	ResponseTime     time.Duration  `json:"response_time"` // Report to payout
	AffectedCitizens uint32         `json:"affected_citizens"`
}

// FundStats is the public projection of the emergency fund.
type FundStats struct {
	Balance            uint64 `json:"fund_balance"`
	TotalContributions uint64 `json:"total_contributions"`
	TotalPayouts       uint64 `json:"total_payouts"`
	IncidentCount      uint32 `json:"incident_count"`
}

// PayoutTally summarizes approval votes on one incident.
type PayoutTally struct {
	IncidentID uint32 `json:"incident_id"`
	Approvals  int    `json:"approvals"`
	Rejections int    `json:"rejections"`
	Required   uint32 `json:"required"`
}
