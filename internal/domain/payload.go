package domain

// FormulaKind selects one of the closed set of discount formulas. Free-form
// formula strings are deliberately not supported; rule authors pick a kind
// and parameters instead.
type FormulaKind string

const (
	// FormulaPercentage discounts a percentage of the base price.
	FormulaPercentage FormulaKind = "percentage"

	// FormulaFixed discounts a fixed amount.
	FormulaFixed FormulaKind = "fixed"

	// FormulaTiered picks the percentage of the highest tier whose MinValue
	// the base price reaches.
	FormulaTiered FormulaKind = "tiered"
)

// FormulaTier is one step of a tiered formula.
type FormulaTier struct {
	MinValue   float64 `json:"min_value"`
	Percentage float64 `json:"percentage"`
}

// Formula is a parameterized discount computation.
type Formula struct {
	Kind       FormulaKind   `json:"kind"`
	Percentage float64       `json:"percentage,omitempty"`
	Amount     float64       `json:"amount,omitempty"`
	Tiers      []FormulaTier `json:"tiers,omitempty"`
}

// Apply computes the discount for a base price. Unknown kinds yield zero.
func (f *Formula) Apply(base float64) float64 {
	switch f.Kind {
	case FormulaPercentage:
		return base * f.Percentage / 100
	case FormulaFixed:
		return f.Amount
	case FormulaTiered:
		best := 0.0
		bestMin := -1.0
		for _, tier := range f.Tiers {
			if base >= tier.MinValue && tier.MinValue > bestMin {
				best = base * tier.Percentage / 100
				bestMin = tier.MinValue
			}
		}
		return best
	default:
		return 0
	}
}

// Payload is the family-specific configuration of a rule. The typed fields
// cover the built-in families; Extra is the generic fallback for unknown or
// forward-compatible keys.
type Payload struct {
	// No-show policy
	FeePercentage     *float64 `json:"fee_percentage,omitempty"`
	MinFeeAmount      *float64 `json:"min_fee_amount,omitempty"`
	MaxFeeAmount      *float64 `json:"max_fee_amount,omitempty"`
	GraceCustomers    []string `json:"grace_customers,omitempty"`
	WaiveFirstOffense bool     `json:"waive_first_offense,omitempty"`

	// Discount stacking
	Formula           *Formula `json:"formula,omitempty"`
	MaxDiscountAmount *float64 `json:"max_discount_amount,omitempty"`

	// Availability
	Available        *bool    `json:"available,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	AlternativeSlots []string `json:"alternative_slots,omitempty"`

	// Notification templates
	Templates []string `json:"templates,omitempty"`

	// Experiment arms
	ExperimentKey string  `json:"experiment_key,omitempty"`
	Variant       string  `json:"variant,omitempty"`
	Weight        float64 `json:"weight,omitempty"`

	// Feature flag
	Value any `json:"value,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}
