package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
)

// UtilizationGetter supplies branch utilization at a point in time when the
// request context does not carry it. Mirrors how the scheduling service
// exposes its occupancy feed.
type UtilizationGetter func(ctx context.Context, orgID, branchID string, at time.Time) (float64, error)

// Resolver turns a request context and family prefix into the ordered list of
// applicable rules. Candidate lists are cached per (organization, family)
// with a TTL; a failing store degrades to an empty list rather than an error.
type Resolver struct {
	store domain.RuleStore
	cache domain.RuleCache
	bus   domain.EventBus

	conditions *ConditionEvaluator

	cacheTTL     time.Duration
	storeTimeout time.Duration

	// now is injectable for temporal tests.
	now func() time.Time

	utilization UtilizationGetter
}

// NewResolver creates a resolver wired to its store, cache and bus.
func NewResolver(store domain.RuleStore, cache domain.RuleCache, bus domain.EventBus, conditions *ConditionEvaluator, cfg domain.ResolverConfig) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 3 * time.Second
	}
	return &Resolver{
		store:        store,
		cache:        cache,
		bus:          bus,
		conditions:   conditions,
		cacheTTL:     cfg.CacheTTL,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// WithClock overrides the resolver clock.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// WithUtilizationGetter attaches a live utilization source.
func (r *Resolver) WithUtilizationGetter(fn UtilizationGetter) *Resolver {
	r.utilization = fn
	return r
}

// Resolve returns the active rules applicable to the context, ordered by
// priority, then scope specificity, then version, all descending. An empty
// slice is a normal outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, rc *domain.Context, familyPrefix string) ([]*domain.Rule, error) {
	if rc == nil || rc.OrganizationID == "" {
		return nil, fmt.Errorf("resolve: %w", domain.ErrMissingOrg)
	}

	now := rc.Now
	if now.IsZero() {
		now = r.now()
	}
	r.enrichUtilization(ctx, rc, now)

	candidates := r.candidates(ctx, rc.OrganizationID, familyPrefix)

	applicable := make([]*domain.Rule, 0, len(candidates))
	for _, rule := range candidates {
		if rule.Status != domain.StatusActive {
			continue
		}
		if !InScope(&rule.Scope, rc) {
			continue
		}
		if !InEffect(&rule.Conditions, now) {
			continue
		}
		if !r.conditions.Satisfied(rule, rc, now) {
			continue
		}
		applicable = append(applicable, rule)
	}

	sortRules(applicable)
	return applicable, nil
}

// sortRules orders rules by priority desc, specificity desc, version desc.
// The ordering is total for distinct versions of distinct rules, so repeated
// resolutions of the same candidate set agree.
func sortRules(rules []*domain.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		si, sj := rules[i].Scope.Specificity(), rules[j].Scope.Specificity()
		if si != sj {
			return si > sj
		}
		return rules[i].Metadata.Version > rules[j].Metadata.Version
	})
}

// candidates fetches the raw rule list for (org, family), serving from cache
// when possible. Store failures are logged and degrade to an empty list so a
// flapping database cannot take decisions down with it.
func (r *Resolver) candidates(ctx context.Context, orgID, familyPrefix string) []*domain.Rule {
	key := cacheKey(familyPrefix)

	if data, err := r.cache.Get(ctx, orgID, key); err != nil {
		slog.Warn("rule cache read failed",
			"org_id", orgID,
			"family", familyPrefix,
			"error", err,
		)
	} else if data != nil {
		var rules []*domain.Rule
		if err := json.Unmarshal(data, &rules); err == nil {
			return rules
		}
		slog.Warn("rule cache entry corrupt, refetching",
			"org_id", orgID,
			"family", familyPrefix,
			"error", err,
		)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	rules, err := r.store.FetchRules(fetchCtx, orgID, familyPrefix)
	if err != nil {
		slog.Warn("rule store fetch failed, continuing with no rules",
			"org_id", orgID,
			"family", familyPrefix,
			"error", err,
		)
		return nil
	}

	if data, err := json.Marshal(rules); err == nil {
		if err := r.cache.Set(ctx, orgID, key, data, r.cacheTTL); err != nil {
			slog.Warn("rule cache write failed",
				"org_id", orgID,
				"family", familyPrefix,
				"error", err,
			)
		}
	}

	return rules
}

func (r *Resolver) enrichUtilization(ctx context.Context, rc *domain.Context, now time.Time) {
	if rc.Utilization != nil || r.utilization == nil || rc.BranchID == "" {
		return
	}
	u, err := r.utilization(ctx, rc.OrganizationID, rc.BranchID, now)
	if err != nil {
		slog.Warn("utilization lookup failed",
			"org_id", rc.OrganizationID,
			"branch_id", rc.BranchID,
			"error", err,
		)
		return
	}
	rc.Utilization = &u
}

// UpsertRule persists a new rule version, invalidates the family's cached
// candidate list and notifies other nodes. Returns the rule ID.
func (r *Resolver) UpsertRule(ctx context.Context, orgID string, rule *domain.Rule) (string, error) {
	if orgID == "" {
		return "", fmt.Errorf("upsert rule: %w", domain.ErrMissingOrg)
	}
	if err := r.conditions.ValidateExpr(rule.Conditions.Expr); err != nil {
		return "", err
	}

	id, err := r.store.UpsertRule(ctx, orgID, rule)
	if err != nil {
		return "", err
	}

	family := domain.FamilyPrefix(rule.FamilyCode)
	if err := r.cache.Delete(ctx, orgID, cacheKey(family)); err != nil {
		slog.Warn("cache invalidation failed after upsert",
			"org_id", orgID,
			"family", family,
			"error", err,
		)
	}

	if r.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"rule_id": id,
			"family":  family,
		})
		if err := r.bus.Publish(ctx, orgID, domain.TopicRuleUpdated, payload); err != nil {
			slog.Error("failed to publish rule update",
				"org_id", orgID,
				"rule_id", id,
				"error", err,
			)
		}
	}

	return id, nil
}

// GetRule returns the latest version of a single rule.
func (r *Resolver) GetRule(ctx context.Context, orgID, ruleID string) (*domain.Rule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("get rule: %w", domain.ErrMissingOrg)
	}
	return r.store.GetRule(ctx, orgID, ruleID)
}

// InvalidateCache drops cached candidate lists. Both arguments empty flushes
// everything; orgID alone clears one organization; orgID plus familyPrefix
// clears a single family.
func (r *Resolver) InvalidateCache(ctx context.Context, orgID, familyPrefix string) error {
	switch {
	case orgID == "" && familyPrefix == "":
		return r.cache.Flush(ctx)
	case familyPrefix == "":
		return r.cache.DeletePrefix(ctx, orgID, "")
	default:
		return r.cache.Delete(ctx, orgID, cacheKey(familyPrefix))
	}
}

func cacheKey(familyPrefix string) string {
	return "rules:" + familyPrefix
}
