package decision

import (
	"github.com/bookwell/kestrel/internal/domain"
)

// AvailabilityStrategy lets the single winning rule state whether a slot is
// bookable. A rule without an explicit verdict means available.
type AvailabilityStrategy struct{}

func (s *AvailabilityStrategy) Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule {
	if len(rules) == 0 {
		return nil
	}
	return rules[:1]
}

func (s *AvailabilityStrategy) Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision {
	rule := rules[0]
	p := &rule.Payload

	if p.Available != nil && !*p.Available {
		payload := map[string]any{}
		if len(p.AlternativeSlots) > 0 {
			payload["alternative_slots"] = p.AlternativeSlots
		}
		reason := p.Reason
		if reason == "" {
			reason = "slot blocked by policy"
		}
		return &domain.Decision{
			Decision:   domain.DecisionUnavailable,
			Reason:     reason,
			Confidence: 1.0,
			Evidence:   domain.Evidence{AppliedRuleID: rule.RuleID},
			Payload:    payload,
		}
	}

	return &domain.Decision{
		Decision:   domain.DecisionAvailable,
		Reason:     "slot permitted by policy",
		Confidence: 1.0,
		Evidence:   domain.Evidence{AppliedRuleID: rule.RuleID},
	}
}
