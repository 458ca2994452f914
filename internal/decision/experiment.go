package decision

import (
	"math"

	"github.com/bookwell/kestrel/internal/domain"
	"github.com/cespare/xxhash/v2"
)

// ExperimentStrategy assigns a variant by hashing the bucketing subject into
// the weighted arm space. The subject is the customer ID, falling back to the
// organization ID for anonymous traffic, so assignment is per-customer, not
// per-organization. The same subject always lands in the same arm for a given
// arm set, so repeated calls are stable with no assignment storage.
type ExperimentStrategy struct{}

func (s *ExperimentStrategy) Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule {
	return rules
}

func (s *ExperimentStrategy) Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision {
	totalWeight := 0.0
	for _, rule := range rules {
		totalWeight += armWeight(rule)
	}

	key := rules[0].Payload.ExperimentKey

	subject := rc.CustomerID
	if subject == "" {
		subject = rc.OrganizationID
	}

	position := bucketPosition(key, subject) * totalWeight

	cumulative := 0.0
	chosen := rules[len(rules)-1]
	for _, arm := range rules {
		cumulative += armWeight(arm)
		if position < cumulative {
			chosen = arm
			break
		}
	}

	return &domain.Decision{
		Decision:   domain.DecisionVariant,
		Reason:     "deterministic experiment assignment",
		Confidence: 1.0,
		Evidence:   domain.Evidence{AppliedRuleID: chosen.RuleID},
		Payload: map[string]any{
			"experiment_key": key,
			"variant":        chosen.Payload.Variant,
		},
	}
}

// armWeight treats an unset or non-positive weight as 1, so an experiment
// authored without explicit weights splits evenly. An explicit zero cannot be
// told apart from unset in the payload; arms are excluded by deactivating the
// rule, not by zeroing the weight.
func armWeight(rule *domain.Rule) float64 {
	if rule.Payload.Weight <= 0 {
		return 1
	}
	return rule.Payload.Weight
}

// bucketPosition maps (experiment, subject) to [0, 1). xxhash mixes every
// input byte into the full 64-bit range, so subjects differing only in a
// trailing character still spread across the arm space and long-run arm
// frequencies track the weight proportions.
func bucketPosition(experimentKey, subject string) float64 {
	h := xxhash.Sum64String(experimentKey + ":" + subject)
	return float64(h) / math.MaxUint64
}
