package decision

import (
	"github.com/bookwell/kestrel/internal/domain"
)

// NoShowStrategy implements the no-show fee policy: a single winning rule
// decides whether the fee is waived or charged, and the charge is computed
// from the appointment value with clamping.
type NoShowStrategy struct{}

func (s *NoShowStrategy) Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule {
	if len(rules) == 0 {
		return nil
	}
	return rules[:1]
}

func (s *NoShowStrategy) Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision {
	rule := rules[0]
	p := &rule.Payload

	for _, grace := range p.GraceCustomers {
		if grace != "" && grace == rc.CustomerID {
			return &domain.Decision{
				Decision:   domain.DecisionWaive,
				Reason:     "customer is on the grace list",
				Confidence: 1.0,
				Evidence:   domain.Evidence{AppliedRuleID: rule.RuleID},
				Payload:    map[string]any{"fee_amount": 0.0},
			}
		}
	}

	if p.WaiveFirstOffense && boolInput(inputs, "is_first_offense") {
		return &domain.Decision{
			Decision:   domain.DecisionWaive,
			Reason:     "first offense waived by policy",
			Confidence: 0.95,
			Evidence:   domain.Evidence{AppliedRuleID: rule.RuleID},
			Payload:    map[string]any{"fee_amount": 0.0},
		}
	}

	base, _ := floatInput(inputs, "appointment_value")

	fee := 0.0
	if p.FeePercentage != nil {
		fee = base * *p.FeePercentage / 100
	}
	if p.MinFeeAmount != nil && fee < *p.MinFeeAmount {
		fee = *p.MinFeeAmount
	}
	if p.MaxFeeAmount != nil && fee > *p.MaxFeeAmount {
		fee = *p.MaxFeeAmount
	}

	return &domain.Decision{
		Decision:   domain.DecisionCharge,
		Reason:     "no-show fee per policy",
		Confidence: 0.9,
		Evidence:   domain.Evidence{AppliedRuleID: rule.RuleID},
		Payload:    map[string]any{"fee_amount": fee},
	}
}
