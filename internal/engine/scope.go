package engine

import (
	"github.com/bookwell/kestrel/internal/domain"
)

// orgMismatchScore dominates any combination of dimension weights so a
// cross-organization rule can never rank above an in-organization one.
const orgMismatchScore = -1000.0

// InScope is the strict production gate: every populated scope dimension must
// be satisfied by the request context. A dimension the context omits while
// the rule restricts it is unsatisfied.
func InScope(s *domain.Scope, rc *domain.Context) bool {
	if s.OrganizationID != rc.OrganizationID {
		return false
	}
	_, unmatched := scopeChecks(s, rc)
	return len(unmatched) == 0
}

// ScoreScope is the diagnostic counterpart of InScope. Satisfied dimensions
// contribute their weight, list dimensions scaled by the matched fraction of
// the context's values. Unsatisfied dimensions contribute nothing, and an
// organization mismatch yields a dominating negative score.
func ScoreScope(s *domain.Scope, rc *domain.Context) (float64, []string, []string) {
	if s.OrganizationID != rc.OrganizationID {
		return orgMismatchScore, nil, []string{"scope.organization"}
	}

	matched, unmatched := scopeChecks(s, rc)

	score := 0.0
	if len(s.Branches) > 0 && contains(s.Branches, rc.BranchID) {
		score += domain.WeightBranch
	}
	if len(s.Services) > 0 {
		score += domain.WeightServices * overlapFraction(s.Services, rc.ServiceIDs)
	}
	if len(s.Specialists) > 0 && contains(s.Specialists, rc.SpecialistID) {
		score += domain.WeightSpecialist
	}
	if len(s.CustomerSegments) > 0 {
		score += domain.WeightSegment * overlapFraction(s.CustomerSegments, rc.CustomerSegments)
	}
	if len(s.Channels) > 0 && contains(s.Channels, rc.Channel) {
		score += domain.WeightChannel
	}

	return score, matched, unmatched
}

// scopeChecks buckets each populated dimension as matched or unmatched
// against the context. Unpopulated dimensions restrict nothing and appear in
// neither list.
func scopeChecks(s *domain.Scope, rc *domain.Context) (matched, unmatched []string) {
	check := func(name string, ok bool) {
		if ok {
			matched = append(matched, name)
		} else {
			unmatched = append(unmatched, name)
		}
	}

	if len(s.Branches) > 0 {
		check("scope.branch", rc.BranchID != "" && contains(s.Branches, rc.BranchID))
	}
	if len(s.Services) > 0 {
		check("scope.services", overlaps(s.Services, rc.ServiceIDs))
	}
	if len(s.Specialists) > 0 {
		check("scope.specialist", rc.SpecialistID != "" && contains(s.Specialists, rc.SpecialistID))
	}
	if len(s.CustomerSegments) > 0 {
		check("scope.customer_segments", overlaps(s.CustomerSegments, rc.CustomerSegments))
	}
	if len(s.Channels) > 0 {
		check("scope.channel", rc.Channel != "" && contains(s.Channels, rc.Channel))
	}

	return matched, unmatched
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func overlaps(set, values []string) bool {
	for _, v := range values {
		if contains(set, v) {
			return true
		}
	}
	return false
}

// overlapFraction is the share of the context's values the rule's set covers.
// An empty context list means the dimension was not supplied and covers
// nothing.
func overlapFraction(set, values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	hit := 0
	for _, v := range values {
		if contains(set, v) {
			hit++
		}
	}
	return float64(hit) / float64(len(values))
}
