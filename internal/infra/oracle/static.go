// Package oracle provides advisory feeds consumed as opaque input by the
// governance ledger.
package oracle

import "context"

// DefaultRecommendation is attached to proposals when no other text is configured.
const DefaultRecommendation = "AI Analysis: High impact proposal with 87% success probability"

// Static returns the same recommendation for every proposal.
type Static struct {
	Text string
}

// Recommend implements domain.Advisor.
func (s Static) Recommend(ctx context.Context, title, description string, budget uint64) (string, error) {
	if s.Text == "" {
		return DefaultRecommendation, nil
	}
	return s.Text, nil
}
