package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
	"github.com/google/cel-go/cel"
)

// ConditionEvaluator evaluates the non-temporal condition gates of a rule:
// the typed business thresholds plus the optional CEL expression. Compiled
// programs are cached per rule version since rule versions are immutable.
type ConditionEvaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewConditionEvaluator creates an evaluator with the fixed CEL variable set
// rule expressions may reference.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("utilization", cel.DoubleType),
		cel.Variable("lead_minutes", cel.DoubleType),
		cel.Variable("advance_days", cel.DoubleType),
		cel.Variable("order_value", cel.DoubleType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ConditionEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Satisfied reports whether every condition gate of the rule holds for the
// context at now.
func (e *ConditionEvaluator) Satisfied(rule *domain.Rule, rc *domain.Context, now time.Time) bool {
	_, unmatched := e.Explain(rule, rc, now)
	return len(unmatched) == 0
}

// Explain evaluates each condition restriction present on the rule and
// buckets it as matched or unmatched. Absent restrictions appear in neither
// list. Expression evaluation errors count as unmatched.
func (e *ConditionEvaluator) Explain(rule *domain.Rule, rc *domain.Context, now time.Time) (matched, unmatched []string) {
	c := &rule.Conditions

	check := func(name string, ok bool) {
		if ok {
			matched = append(matched, name)
		} else {
			unmatched = append(unmatched, name)
		}
	}

	if c.UtilizationBelow != nil {
		check("utilization_below", rc.Utilization != nil && *rc.Utilization < *c.UtilizationBelow)
	}
	if c.MinLeadMinutes != nil {
		check("min_lead_minutes", rc.AppointmentTime != nil &&
			rc.AppointmentTime.Sub(now).Minutes() >= *c.MinLeadMinutes)
	}
	if c.MaxAdvanceDays != nil {
		check("max_advance_days", rc.AppointmentTime != nil &&
			rc.AppointmentTime.Sub(now).Hours()/24 <= *c.MaxAdvanceDays)
	}
	if c.MinOrderValue != nil {
		check("min_order_value", rc.OrderValue != nil && *rc.OrderValue >= *c.MinOrderValue)
	}

	if c.Expr != "" {
		ok, err := e.evalExpr(rule, rc, now)
		if err != nil {
			slog.Warn("condition expression evaluation failed",
				"rule_id", rule.RuleID,
				"version", rule.Metadata.Version,
				"error", err,
			)
			ok = false
		}
		check("expr", ok)
	}

	return matched, unmatched
}

// ValidateExpr compiles an expression without evaluating it, for upsert-time
// validation.
func (e *ConditionEvaluator) ValidateExpr(expr string) error {
	if expr == "" {
		return nil
	}
	ast, iss := e.env.Compile(expr)
	if iss.Err() != nil {
		return fmt.Errorf("invalid condition expression: %w", iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("condition expression must evaluate to bool, got %s", ast.OutputType())
	}
	return nil
}

func (e *ConditionEvaluator) evalExpr(rule *domain.Rule, rc *domain.Context, now time.Time) (bool, error) {
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(e.activation(rc, now))
	if err != nil {
		return false, err
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return result, nil
}

func (e *ConditionEvaluator) program(rule *domain.Rule) (cel.Program, error) {
	key := fmt.Sprintf("%s:%d", rule.RuleID, rule.Metadata.Version)

	e.mu.RLock()
	prg, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(rule.Conditions.Expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", iss.Err())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build program: %w", err)
	}

	e.mu.Lock()
	e.programs[key] = prg
	e.mu.Unlock()

	return prg, nil
}

// activation maps context fields to the declared CEL variables. Absent
// numeric inputs are presented as -1 so expressions can distinguish missing
// from zero.
func (e *ConditionEvaluator) activation(rc *domain.Context, now time.Time) map[string]any {
	utilization := -1.0
	if rc.Utilization != nil {
		utilization = *rc.Utilization
	}

	leadMinutes := -1.0
	advanceDays := -1.0
	if rc.AppointmentTime != nil {
		leadMinutes = rc.AppointmentTime.Sub(now).Minutes()
		advanceDays = rc.AppointmentTime.Sub(now).Hours() / 24
	}

	orderValue := -1.0
	if rc.OrderValue != nil {
		orderValue = *rc.OrderValue
	}

	return map[string]any{
		"utilization":  utilization,
		"lead_minutes": leadMinutes,
		"advance_days": advanceDays,
		"order_value":  orderValue,
		"channel":      rc.Channel,
		"weekday":      int64(now.Weekday()),
		"hour":         int64(now.Hour()),
	}
}
