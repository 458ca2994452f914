package decision

import (
	"github.com/bookwell/kestrel/internal/domain"
)

// FeatureFlagStrategy reads the winning rule's payload value as a flag. A
// boolean value toggles on or off; any other value means the flag is on and
// carries configuration.
type FeatureFlagStrategy struct{}

func (s *FeatureFlagStrategy) Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule {
	if len(rules) == 0 {
		return nil
	}
	return rules[:1]
}

func (s *FeatureFlagStrategy) Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision {
	rule := rules[0]
	value := rule.Payload.Value

	verdict := domain.DecisionFlagOn
	if b, ok := value.(bool); ok && !b {
		verdict = domain.DecisionFlagOff
	}

	return &domain.Decision{
		Decision:   verdict,
		Reason:     "flag state from highest-ranked rule",
		Confidence: 1.0,
		Evidence:   domain.Evidence{AppliedRuleID: rule.RuleID},
		Payload:    map[string]any{"value": value},
	}
}
