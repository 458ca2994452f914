package engine

import (
	"testing"

	"github.com/bookwell/kestrel/internal/domain"
)

func TestInScope(t *testing.T) {
	scope := &domain.Scope{
		OrganizationID: "org-1",
		Branches:       []string{"branch-a", "branch-b"},
		Channels:       []string{"app"},
	}

	t.Run("all dimensions satisfied", func(t *testing.T) {
		rc := &domain.Context{
			OrganizationID: "org-1",
			BranchID:       "branch-a",
			Channel:        "app",
		}
		if !InScope(scope, rc) {
			t.Error("expected context to be in scope")
		}
	})

	t.Run("organization isolation", func(t *testing.T) {
		rc := &domain.Context{
			OrganizationID: "org-2",
			BranchID:       "branch-a",
			Channel:        "app",
		}
		if InScope(scope, rc) {
			t.Error("expected cross-organization context to be out of scope")
		}
	})

	t.Run("restricted dimension not satisfied", func(t *testing.T) {
		rc := &domain.Context{
			OrganizationID: "org-1",
			BranchID:       "branch-z",
			Channel:        "app",
		}
		if InScope(scope, rc) {
			t.Error("expected wrong branch to be out of scope")
		}
	})

	t.Run("omitted context dimension is unsatisfied", func(t *testing.T) {
		rc := &domain.Context{
			OrganizationID: "org-1",
			Channel:        "app",
		}
		if InScope(scope, rc) {
			t.Error("expected missing branch to be out of scope when rule restricts branches")
		}
	})

	t.Run("unrestricted scope matches everything", func(t *testing.T) {
		wide := &domain.Scope{OrganizationID: "org-1"}
		rc := &domain.Context{OrganizationID: "org-1"}
		if !InScope(wide, rc) {
			t.Error("expected organization-wide rule to match bare context")
		}
	})

	t.Run("service intersection", func(t *testing.T) {
		svc := &domain.Scope{
			OrganizationID: "org-1",
			Services:       []string{"haircut", "color"},
		}
		rc := &domain.Context{
			OrganizationID: "org-1",
			ServiceIDs:     []string{"massage", "color"},
		}
		if !InScope(svc, rc) {
			t.Error("expected non-empty service intersection to satisfy scope")
		}

		rc.ServiceIDs = []string{"massage"}
		if InScope(svc, rc) {
			t.Error("expected disjoint services to be out of scope")
		}
	})
}

func TestScoreScope(t *testing.T) {
	t.Run("organization mismatch dominates", func(t *testing.T) {
		scope := &domain.Scope{OrganizationID: "org-1"}
		rc := &domain.Context{OrganizationID: "org-2"}

		score, _, unmatched := ScoreScope(scope, rc)
		if score != orgMismatchScore {
			t.Errorf("score = %v, want %v", score, orgMismatchScore)
		}
		if len(unmatched) != 1 || unmatched[0] != "scope.organization" {
			t.Errorf("unmatched = %v, want [scope.organization]", unmatched)
		}
	})

	t.Run("full branch match contributes full weight", func(t *testing.T) {
		scope := &domain.Scope{
			OrganizationID: "org-1",
			Branches:       []string{"branch-a"},
		}
		rc := &domain.Context{OrganizationID: "org-1", BranchID: "branch-a"}

		score, matched, unmatched := ScoreScope(scope, rc)
		if score != domain.WeightBranch {
			t.Errorf("score = %v, want %v", score, domain.WeightBranch)
		}
		if len(matched) != 1 || len(unmatched) != 0 {
			t.Errorf("matched = %v, unmatched = %v", matched, unmatched)
		}
	})

	t.Run("partial service overlap scales weight", func(t *testing.T) {
		scope := &domain.Scope{
			OrganizationID: "org-1",
			Services:       []string{"haircut"},
		}
		rc := &domain.Context{
			OrganizationID: "org-1",
			ServiceIDs:     []string{"haircut", "massage"},
		}

		score, _, _ := ScoreScope(scope, rc)
		want := domain.WeightServices * 0.5
		if score != want {
			t.Errorf("score = %v, want %v", score, want)
		}
	})
}

func TestSpecificityOrdering(t *testing.T) {
	branchScope := domain.Scope{OrganizationID: "org-1", Branches: []string{"b"}}
	channelScope := domain.Scope{OrganizationID: "org-1", Channels: []string{"app"}}
	wide := domain.Scope{OrganizationID: "org-1"}

	if branchScope.Specificity() <= channelScope.Specificity() {
		t.Error("expected branch restriction to be more specific than channel restriction")
	}
	if channelScope.Specificity() <= wide.Specificity() {
		t.Error("expected any restriction to be more specific than no restriction")
	}
}
