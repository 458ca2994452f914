package domain

import (
	"strings"
	"time"
)

// RuleStatus is the lifecycle state of a rule.
type RuleStatus string

const (
	// StatusActive rules are eligible for resolution and decisions.
	StatusActive RuleStatus = "active"

	// StatusInactive rules are retained but never selected in production.
	StatusInactive RuleStatus = "inactive"

	// StatusDraft rules are visible to diagnostic scoring only.
	StatusDraft RuleStatus = "draft"
)

// Rule is the unit of business configuration. Rules are versioned and never
// physically deleted; deactivation flips Status.
type Rule struct {
	RuleID     string       `json:"rule_id"`
	FamilyCode string       `json:"family_code"`
	Status     RuleStatus   `json:"status"`
	Scope      Scope        `json:"scope"`
	Conditions Conditions   `json:"conditions"`
	Priority   int          `json:"priority"`
	Payload    Payload      `json:"payload"`
	Metadata   RuleMetadata `json:"metadata"`
}

// Scope restricts a rule to contextual dimensions. OrganizationID is required
// and immutable; every other dimension is optional and, when empty, imposes
// no restriction.
type Scope struct {
	OrganizationID   string   `json:"organization_id"`
	Branches         []string `json:"branches,omitempty"`
	Services         []string `json:"services,omitempty"`
	Specialists      []string `json:"specialists,omitempty"`
	CustomerSegments []string `json:"customer_segments,omitempty"`
	Channels         []string `json:"channels,omitempty"`
}

// Dimension weights, most to least specific. Shared by specificity ranking
// and diagnostic scoring.
const (
	WeightBranch     = 30.0
	WeightServices   = 25.0
	WeightSpecialist = 20.0
	WeightSegment    = 15.0
	WeightChannel    = 10.0
)

// Specificity is a deterministic weighted count of populated scope
// dimensions. A narrower scope yields a higher value. Used as the tie-breaker
// after priority.
func (s *Scope) Specificity() int {
	total := 0.0
	if len(s.Branches) > 0 {
		total += WeightBranch
	}
	if len(s.Services) > 0 {
		total += WeightServices
	}
	if len(s.Specialists) > 0 {
		total += WeightSpecialist
	}
	if len(s.CustomerSegments) > 0 {
		total += WeightSegment
	}
	if len(s.Channels) > 0 {
		total += WeightChannel
	}
	return int(total)
}

// TimeWindow is a local time-of-day window in "HH:MM" form. A window where
// Start > End wraps past midnight (22:00-02:00).
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Conditions gate a rule temporally and by business thresholds. The typed
// fields cover the cross-family subset; Extra carries family-specific keys
// the generic evaluator ignores, preserved for lossless round-tripping.
type Conditions struct {
	EffectiveFrom time.Time    `json:"effective_from"`
	EffectiveTo   *time.Time   `json:"effective_to,omitempty"`
	DaysOfWeek    []int        `json:"days_of_week,omitempty"`
	TimeWindows   []TimeWindow `json:"time_windows,omitempty"`

	UtilizationBelow *float64 `json:"utilization_below,omitempty"`
	MinLeadMinutes   *float64 `json:"min_lead_minutes,omitempty"`
	MaxAdvanceDays   *float64 `json:"max_advance_days,omitempty"`
	MinOrderValue    *float64 `json:"min_order_value,omitempty"`

	// Expr is an optional CEL expression over the fixed condition variable
	// set, evaluated alongside the typed thresholds.
	Expr string `json:"expr,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// RolloutStrategy controls how a new rule version takes effect.
type RolloutStrategy string

const (
	RolloutImmediate  RolloutStrategy = "immediate"
	RolloutPercentage RolloutStrategy = "percentage"
	RolloutGradual    RolloutStrategy = "gradual"
)

// Rollout describes a staged activation of a rule version.
type Rollout struct {
	Strategy     RolloutStrategy `json:"strategy"`
	Percentage   float64         `json:"percentage,omitempty"`
	TargetGroups []string        `json:"target_groups,omitempty"`
}

// RuleMetadata carries authorship and versioning. Version strictly increases
// on every upsert of the same RuleID.
type RuleMetadata struct {
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Version   int       `json:"version"`
	Rollout   *Rollout  `json:"rollout,omitempty"`
}

// familySegments is the number of leading FamilyCode segments that identify
// the family used for composition and decision dispatch.
const familySegments = 5

// FamilyPrefix returns the leading segments of a dotted family code, e.g.
// "ORG.CONFIG.PRICING.DISCOUNT.STACK.WINTER" yields
// "ORG.CONFIG.PRICING.DISCOUNT.STACK".
func FamilyPrefix(code string) string {
	parts := strings.Split(code, ".")
	if len(parts) <= familySegments {
		return code
	}
	return strings.Join(parts[:familySegments], ".")
}

// Built-in family prefixes.
const (
	FamilyNoShow       = "ORG.CONFIG.BOOKING.NO_SHOW.POLICY"
	FamilyAvailability = "ORG.CONFIG.BOOKING.AVAILABILITY.CHECK"
	FamilyDiscount     = "ORG.CONFIG.PRICING.DISCOUNT.STACK"
	FamilyNotify       = "ORG.CONFIG.NOTIFY.TEMPLATES.MERGE"
	FamilyExperiment   = "ORG.CONFIG.UI.EXPERIMENT.AB"
	FamilyFeatureFlag  = "ORG.CONFIG.FEATURE.FLAG.TOGGLE"
)

// RuleMatch is the diagnostic-mode output of scoring. It never drives
// production behavior; it exists for authoring and conflict troubleshooting.
type RuleMatch struct {
	Rule                *Rule    `json:"rule"`
	Score               float64  `json:"score"`
	MatchedConditions   []string `json:"matched_conditions"`
	UnmatchedConditions []string `json:"unmatched_conditions"`
}
