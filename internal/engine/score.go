package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
)

// Diagnostic score contributions. Violations dominate so a rule with any
// failed gate ranks below every fully matching one.
const (
	temporalMatchScore  = 10.0
	conditionMatchScore = 15.0
	violationScore      = -100.0
)

// Score ranks every candidate rule for the context, including drafts and
// inactive rules, with per-rule matched and unmatched gate lists. It is a
// diagnostic tool for rule authors; nothing in the decision path consumes it.
func (r *Resolver) Score(ctx context.Context, rc *domain.Context, familyPrefix string) ([]*domain.RuleMatch, error) {
	if rc == nil || rc.OrganizationID == "" {
		return nil, fmt.Errorf("score: %w", domain.ErrMissingOrg)
	}

	now := rc.Now
	if now.IsZero() {
		now = r.now()
	}
	r.enrichUtilization(ctx, rc, now)

	candidates := r.candidates(ctx, rc.OrganizationID, familyPrefix)

	matches := make([]*domain.RuleMatch, 0, len(candidates))
	for _, rule := range candidates {
		matches = append(matches, r.scoreRule(rule, rc, now))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Rule.Priority > matches[j].Rule.Priority
	})

	return matches, nil
}

func (r *Resolver) scoreRule(rule *domain.Rule, rc *domain.Context, now time.Time) *domain.RuleMatch {
	score, matched, unmatched := ScoreScope(&rule.Scope, rc)

	tm, tu := temporalChecks(&rule.Conditions, now)
	matched = append(matched, tm...)
	unmatched = append(unmatched, tu...)
	score += temporalMatchScore * float64(len(tm))

	cm, cu := r.conditions.Explain(rule, rc, now)
	matched = append(matched, cm...)
	unmatched = append(unmatched, cu...)
	score += conditionMatchScore * float64(len(cm))

	score += violationScore * float64(len(unmatched))

	if matched == nil {
		matched = []string{}
	}
	if unmatched == nil {
		unmatched = []string{}
	}

	return &domain.RuleMatch{
		Rule:                rule,
		Score:               score,
		MatchedConditions:   matched,
		UnmatchedConditions: unmatched,
	}
}
