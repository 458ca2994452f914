package decision

import (
	"github.com/bookwell/kestrel/internal/domain"
)

// DiscountStackStrategy stacks every applicable discount rule. Each rule's
// formula runs against the original price, is capped by the rule's own
// ceiling, and the capped amounts sum. The final price never drops below
// zero.
type DiscountStackStrategy struct{}

func (s *DiscountStackStrategy) Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule {
	return rules
}

func (s *DiscountStackStrategy) Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision {
	original, ok := floatInput(inputs, "original_price")
	if !ok {
		if rc.OrderValue != nil {
			original = *rc.OrderValue
		}
	}

	total := 0.0
	breakdown := make([]map[string]any, 0, len(rules))
	for _, rule := range rules {
		if rule.Payload.Formula == nil {
			continue
		}
		amount := rule.Payload.Formula.Apply(original)
		if rule.Payload.MaxDiscountAmount != nil && amount > *rule.Payload.MaxDiscountAmount {
			amount = *rule.Payload.MaxDiscountAmount
		}
		if amount <= 0 {
			continue
		}
		total += amount
		breakdown = append(breakdown, map[string]any{
			"rule_id": rule.RuleID,
			"amount":  amount,
		})
	}

	final := original - total
	if final < 0 {
		final = 0
	}

	return &domain.Decision{
		Decision:   domain.DecisionDiscount,
		Reason:     "stacked applicable discounts",
		Confidence: 1.0,
		Payload: map[string]any{
			"original_price": original,
			"total_discount": total,
			"final_price":    final,
			"breakdown":      breakdown,
		},
	}
}
