package domain

import "time"

// Decision verdicts shared by the built-in families.
const (
	DecisionNoMatchingRule = "no_matching_rule"
	DecisionWaive          = "waive"
	DecisionCharge         = "charge"
	DecisionDiscount       = "discount"
	DecisionAvailable      = "available"
	DecisionUnavailable    = "unavailable"
	DecisionNotify         = "notify"
	DecisionVariant        = "variant"
	DecisionFlagOn         = "flag_on"
	DecisionFlagOff        = "flag_off"
	DecisionApply          = "apply"
)

// Evidence records why a decision was made, for auditability.
type Evidence struct {
	// MatchingRuleIDs lists every rule that survived resolution,
	// pre-composition.
	MatchingRuleIDs []string `json:"matching_rule_ids"`

	// AppliedRuleID is the rule actually used. For merged pseudo-rules it is
	// the synthesized rule's ID.
	AppliedRuleID string `json:"applied_rule_id,omitempty"`

	// Context is a snapshot of the request context at decision time.
	Context *Context `json:"context"`
}

// Decision is the engine output. Decisions are created per call, never
// mutated, and forwarded best-effort to the audit sink.
type Decision struct {
	Decision   string         `json:"decision"`
	Reason     string         `json:"reason,omitempty"`
	Confidence float64        `json:"confidence"`
	Evidence   Evidence       `json:"evidence"`
	Payload    map[string]any `json:"payload,omitempty"`
	ElapsedMs  int64          `json:"elapsed_ms,omitempty"`
}

// DecisionRecord is the audit-sink envelope for a rendered decision.
type DecisionRecord struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Family         string         `json:"family"`
	Decision       *Decision      `json:"decision"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
