package decision

import (
	"strings"

	"github.com/bookwell/kestrel/internal/domain"
)

// NotifyMergeStrategy concatenates notification templates from every
// applicable rule in rule order. A template named by two rules appears twice;
// senders that want each template once dedupe downstream. The decision
// carries a synthesized applied-rule ID naming its constituents.
type NotifyMergeStrategy struct{}

func (s *NotifyMergeStrategy) Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule {
	return rules
}

func (s *NotifyMergeStrategy) Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision {
	var templates []string
	var ids []string

	for _, rule := range rules {
		ids = append(ids, rule.RuleID)
		for _, tpl := range rule.Payload.Templates {
			if tpl == "" {
				continue
			}
			templates = append(templates, tpl)
		}
	}

	return &domain.Decision{
		Decision:   domain.DecisionNotify,
		Reason:     "merged notification templates",
		Confidence: 1.0,
		Evidence:   domain.Evidence{AppliedRuleID: "merged:" + strings.Join(ids, "+")},
		Payload:    map[string]any{"templates": templates},
	}
}
