// Package decision renders business decisions from resolved rules. Each rule
// family registers a Strategy that knows how to compose its candidate set and
// turn the composed rules into a verdict.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
	"github.com/bookwell/kestrel/internal/engine"
)

// Strategy is the per-family behavior pair: Compose narrows the resolved,
// ordered rules to the set a decision is built from, and Decide renders the
// verdict. Compose never sees drafts or out-of-scope rules; the resolver
// filtered those already.
type Strategy interface {
	Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule
	Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision
}

// Recorder receives rendered decisions for the audit trail. Recording is
// best-effort and must never block or fail the decision path.
type Recorder interface {
	Record(ctx context.Context, orgID, family string, d *domain.Decision, inputs map[string]any)
}

// Engine dispatches decisions to family strategies. Families without a
// registered strategy fall back to single-winner semantics.
type Engine struct {
	resolver *engine.Resolver
	recorder Recorder

	mu         sync.RWMutex
	strategies map[string]Strategy

	defaultStrategy Strategy
}

// NewEngine creates a decision engine. recorder may be nil, disabling audit.
func NewEngine(resolver *engine.Resolver, recorder Recorder) *Engine {
	return &Engine{
		resolver:        resolver,
		recorder:        recorder,
		strategies:      make(map[string]Strategy),
		defaultStrategy: &SingleWinnerStrategy{},
	}
}

// RegisterStrategy binds a strategy to a family prefix, replacing any
// previous binding.
func (e *Engine) RegisterStrategy(familyPrefix string, s Strategy) {
	e.mu.Lock()
	e.strategies[familyPrefix] = s
	e.mu.Unlock()
}

func (e *Engine) strategy(familyPrefix string) Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.strategies[familyPrefix]; ok {
		return s
	}
	return e.defaultStrategy
}

// Compose resolves and composes without deciding, for callers that want the
// effective rule set rather than a verdict.
func (e *Engine) Compose(ctx context.Context, rc *domain.Context, familyPrefix string) ([]*domain.Rule, error) {
	rules, err := e.resolver.Resolve(ctx, rc, familyPrefix)
	if err != nil {
		return nil, err
	}
	return e.strategy(familyPrefix).Compose(rules, rc), nil
}

// Decide resolves the context against a family and renders a decision. An
// empty composed set yields the no-matching-rule decision with zero
// confidence; it is a normal outcome, not an error.
func (e *Engine) Decide(ctx context.Context, rc *domain.Context, familyPrefix string, inputs map[string]any) (*domain.Decision, error) {
	start := time.Now()

	rules, err := e.resolver.Resolve(ctx, rc, familyPrefix)
	if err != nil {
		return nil, fmt.Errorf("decide: %w", err)
	}

	matchingIDs := make([]string, 0, len(rules))
	for _, r := range rules {
		matchingIDs = append(matchingIDs, r.RuleID)
	}

	strategy := e.strategy(familyPrefix)
	composed := strategy.Compose(rules, rc)

	var d *domain.Decision
	if len(composed) == 0 {
		d = &domain.Decision{
			Decision:   domain.DecisionNoMatchingRule,
			Reason:     "no applicable rule for context",
			Confidence: 0,
		}
	} else {
		d = strategy.Decide(composed, rc, inputs)
	}

	d.Evidence.MatchingRuleIDs = matchingIDs
	d.Evidence.Context = rc.Snapshot()
	d.ElapsedMs = time.Since(start).Milliseconds()

	if e.recorder != nil {
		e.recorder.Record(ctx, rc.OrganizationID, familyPrefix, d, inputs)
	}

	return d, nil
}

// SingleWinnerStrategy is the fallback for families without registered
// behavior: the highest-ranked rule wins and its payload passes through.
type SingleWinnerStrategy struct{}

func (s *SingleWinnerStrategy) Compose(rules []*domain.Rule, rc *domain.Context) []*domain.Rule {
	if len(rules) == 0 {
		return nil
	}
	return rules[:1]
}

func (s *SingleWinnerStrategy) Decide(rules []*domain.Rule, rc *domain.Context, inputs map[string]any) *domain.Decision {
	winner := rules[0]
	return &domain.Decision{
		Decision:   domain.DecisionApply,
		Reason:     "highest-ranked rule applied",
		Confidence: 1.0,
		Evidence:   domain.Evidence{AppliedRuleID: winner.RuleID},
		Payload:    payloadMap(&winner.Payload),
	}
}

// payloadMap renders a typed payload as the decision's generic payload bag.
func payloadMap(p *domain.Payload) map[string]any {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// floatInput extracts a numeric input, tolerating the types JSON decoding
// produces.
func floatInput(inputs map[string]any, key string) (float64, bool) {
	v, ok := inputs[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func boolInput(inputs map[string]any, key string) bool {
	v, ok := inputs[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
