package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bookwell/kestrel/internal/audit"
	"github.com/bookwell/kestrel/internal/bus"
	"github.com/bookwell/kestrel/internal/cache"
	"github.com/bookwell/kestrel/internal/decision"
	"github.com/bookwell/kestrel/internal/domain"
	"github.com/bookwell/kestrel/internal/engine"
	"github.com/bookwell/kestrel/internal/repository"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := repository.New(domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ruleCache := cache.NewMemoryCache()
	eventBus := bus.NewChannelBus(16)
	t.Cleanup(func() { eventBus.Close() })

	cond, err := engine.NewConditionEvaluator()
	if err != nil {
		t.Fatalf("NewConditionEvaluator: %v", err)
	}
	resolver := engine.NewResolver(store, ruleCache, eventBus, cond, domain.ResolverConfig{})

	decisions := decision.NewEngine(resolver, audit.NewWriter(eventBus))
	decision.RegisterBuiltins(decisions)

	return NewServer(domain.ServerConfig{}, resolver, decisions, store, ruleCache, eventBus)
}

func doJSON(t *testing.T, srv *Server, method, path, orgID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if orgID != "" {
		req.Header.Set(OrgHeader, orgID)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func seedNoShowRule(t *testing.T, srv *Server, orgID string) string {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rules", orgID, map[string]any{
		"family_code": domain.FamilyNoShow + ".DEFAULT",
		"status":      "active",
		"priority":    10,
		"payload": map[string]any{
			"fee_percentage": 20,
			"max_fee_amount": 50,
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RuleID string `json:"rule_id"`
	}
	decodeBody(t, rec, &resp)
	return resp.RuleID
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	if rec := doJSON(t, srv, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/ready", "", nil); rec.Code != http.StatusOK {
		t.Errorf("ready = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrgHeaderRequired(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/resolve", "", map[string]any{
		"family": domain.FamilyNoShow,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without org header", rec.Code)
	}
}

func TestRuleLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ruleID := seedNoShowRule(t, srv, "org-1")

	t.Run("get rule", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/rules/"+ruleID, "org-1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		var rule domain.Rule
		decodeBody(t, rec, &rule)
		if rule.RuleID != ruleID {
			t.Errorf("rule_id = %s, want %s", rule.RuleID, ruleID)
		}
	})

	t.Run("list rules", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/rules?family="+domain.FamilyNoShow, "org-1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 1 {
			t.Errorf("count = %d, want 1", resp.Count)
		}
	})

	t.Run("other org sees nothing", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/rules/"+ruleID, "org-2", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404 for other org", rec.Code)
		}
	})

	t.Run("missing rule is 404", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/rules/nope", "org-1", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestResolveEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedNoShowRule(t, srv, "org-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/resolve", "org-1", map[string]any{
		"family":  domain.FamilyNoShow,
		"context": map[string]any{"channel": "app"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count int            `json:"count"`
		Rules []*domain.Rule `json:"rules"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
}

func TestResolveRejectsMismatchedOrg(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/resolve", "org-1", map[string]any{
		"family":  domain.FamilyNoShow,
		"context": map[string]any{"organization_id": "org-2"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for org mismatch", rec.Code)
	}
}

func TestDecideEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedNoShowRule(t, srv, "org-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/decide", "org-1", map[string]any{
		"family":  domain.FamilyNoShow,
		"context": map[string]any{"customer_id": "cust-1"},
		"inputs":  map[string]any{"appointment_value": 100.0},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var d domain.Decision
	decodeBody(t, rec, &d)
	if d.Decision != domain.DecisionCharge {
		t.Errorf("decision = %s, want charge", d.Decision)
	}
	if d.Payload["fee_amount"] != 20.0 {
		t.Errorf("fee_amount = %v, want 20", d.Payload["fee_amount"])
	}
	if len(d.Evidence.MatchingRuleIDs) != 1 {
		t.Errorf("matching rules = %v", d.Evidence.MatchingRuleIDs)
	}
}

func TestDecideNoRules(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/decide", "org-1", map[string]any{
		"family": domain.FamilyAvailability,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var d domain.Decision
	decodeBody(t, rec, &d)
	if d.Decision != domain.DecisionNoMatchingRule {
		t.Errorf("decision = %s, want no_matching_rule", d.Decision)
	}
}

func TestScoreEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedNoShowRule(t, srv, "org-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/score", "org-1", map[string]any{
		"family":  domain.FamilyNoShow,
		"context": map[string]any{},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count   int                 `json:"count"`
		Matches []*domain.RuleMatch `json:"matches"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}
}

func TestInvalidateEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedNoShowRule(t, srv, "org-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/cache/invalidate", "org-1", map[string]any{
		"family": domain.FamilyNoShow,
	})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/decisions/nope", "org-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
