package decision

import (
	"github.com/bookwell/kestrel/internal/domain"
)

// RegisterBuiltins binds the built-in family strategies. Families not listed
// here fall back to single-winner semantics.
func RegisterBuiltins(e *Engine) {
	e.RegisterStrategy(domain.FamilyNoShow, &NoShowStrategy{})
	e.RegisterStrategy(domain.FamilyAvailability, &AvailabilityStrategy{})
	e.RegisterStrategy(domain.FamilyDiscount, &DiscountStackStrategy{})
	e.RegisterStrategy(domain.FamilyNotify, &NotifyMergeStrategy{})
	e.RegisterStrategy(domain.FamilyExperiment, &ExperimentStrategy{})
	e.RegisterStrategy(domain.FamilyFeatureFlag, &FeatureFlagStrategy{})
}
