package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
)

func newTestStore(t *testing.T) domain.RuleStore {
	t.Helper()
	store, err := New(domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRule(org, family string) *domain.Rule {
	return &domain.Rule{
		FamilyCode: family,
		Status:     domain.StatusActive,
		Scope:      domain.Scope{OrganizationID: org},
		Conditions: domain.Conditions{
			EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Priority: 5,
		Payload: domain.Payload{
			FeePercentage: func() *float64 { v := 20.0; return &v }(),
		},
		Metadata: domain.RuleMetadata{CreatedBy: "tester"},
	}
}

func TestUpsertAndFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := sampleRule("org-1", domain.FamilyNoShow+".DEFAULT")
	id, err := store.UpsertRule(ctx, "org-1", rule)
	if err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated rule ID")
	}
	if rule.Metadata.Version != 1 {
		t.Errorf("version = %d, want 1", rule.Metadata.Version)
	}

	rules, err := store.FetchRules(ctx, "org-1", domain.FamilyNoShow)
	if err != nil {
		t.Fatalf("FetchRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	got := rules[0]
	if got.RuleID != id {
		t.Errorf("rule_id = %s, want %s", got.RuleID, id)
	}
	if got.FamilyCode != domain.FamilyNoShow+".DEFAULT" {
		t.Errorf("family_code = %s", got.FamilyCode)
	}
	if got.Payload.FeePercentage == nil || *got.Payload.FeePercentage != 20 {
		t.Errorf("payload fee_percentage not round-tripped: %+v", got.Payload)
	}
	if got.Metadata.CreatedBy != "tester" {
		t.Errorf("created_by = %s", got.Metadata.CreatedBy)
	}
}

func TestVersionBump(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rule := sampleRule("org-1", domain.FamilyNoShow+".DEFAULT")
	id, err := store.UpsertRule(ctx, "org-1", rule)
	if err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	update := sampleRule("org-1", domain.FamilyNoShow+".DEFAULT")
	update.RuleID = id
	update.Priority = 9
	if _, err := store.UpsertRule(ctx, "org-1", update); err != nil {
		t.Fatalf("UpsertRule v2: %v", err)
	}
	if update.Metadata.Version != 2 {
		t.Errorf("version = %d, want 2", update.Metadata.Version)
	}

	// Fetch returns only the latest version.
	rules, err := store.FetchRules(ctx, "org-1", domain.FamilyNoShow)
	if err != nil {
		t.Fatalf("FetchRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1 (latest version only)", len(rules))
	}
	if rules[0].Metadata.Version != 2 || rules[0].Priority != 9 {
		t.Errorf("got version %d priority %d, want version 2 priority 9",
			rules[0].Metadata.Version, rules[0].Priority)
	}

	got, err := store.GetRule(ctx, "org-1", id)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Metadata.Version != 2 {
		t.Errorf("GetRule version = %d, want 2", got.Metadata.Version)
	}
}

func TestUpsertValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("org required", func(t *testing.T) {
		_, err := store.UpsertRule(ctx, "", sampleRule("org-1", domain.FamilyNoShow))
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("org immutable", func(t *testing.T) {
		rule := sampleRule("org-2", domain.FamilyNoShow)
		_, err := store.UpsertRule(ctx, "org-1", rule)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("effective window order", func(t *testing.T) {
		rule := sampleRule("org-1", domain.FamilyNoShow)
		before := rule.Conditions.EffectiveFrom.Add(-time.Hour)
		rule.Conditions.EffectiveTo = &before
		_, err := store.UpsertRule(ctx, "org-1", rule)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		rule := sampleRule("org-1", domain.FamilyNoShow)
		rule.Status = "archived"
		_, err := store.UpsertRule(ctx, "org-1", rule)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("empty status defaults to active", func(t *testing.T) {
		rule := sampleRule("org-1", domain.FamilyNoShow)
		rule.Status = ""
		if _, err := store.UpsertRule(ctx, "org-1", rule); err != nil {
			t.Fatalf("UpsertRule: %v", err)
		}
		if rule.Status != domain.StatusActive {
			t.Errorf("status = %s, want active", rule.Status)
		}
	})
}

func TestOrgIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertRule(ctx, "org-1", sampleRule("org-1", domain.FamilyNoShow)); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	rules, err := store.FetchRules(ctx, "org-2", domain.FamilyNoShow)
	if err != nil {
		t.Fatalf("FetchRules: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("org-2 sees %d of org-1's rules", len(rules))
	}
}

func TestFamilyPrefixFiltering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertRule(ctx, "org-1", sampleRule("org-1", domain.FamilyNoShow+".DEFAULT")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	if _, err := store.UpsertRule(ctx, "org-1", sampleRule("org-1", domain.FamilyDiscount+".WINTER")); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	rules, err := store.FetchRules(ctx, "org-1", domain.FamilyDiscount)
	if err != nil {
		t.Fatalf("FetchRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	if rules[0].FamilyCode != domain.FamilyDiscount+".WINTER" {
		t.Errorf("family_code = %s", rules[0].FamilyCode)
	}
}

func TestGetRuleNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRule(context.Background(), "org-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDecisionRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &domain.DecisionRecord{
		ID:             "rec-1",
		OrganizationID: "org-1",
		Family:         domain.FamilyNoShow,
		Decision: &domain.Decision{
			Decision:   domain.DecisionCharge,
			Confidence: 0.9,
			Payload:    map[string]any{"fee_amount": 25.0},
		},
		Inputs:    map[string]any{"appointment_value": 125.0},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := store.SaveDecisionRecord(ctx, "org-1", rec); err != nil {
		t.Fatalf("SaveDecisionRecord: %v", err)
	}

	got, err := store.GetDecisionRecord(ctx, "org-1", "rec-1")
	if err != nil {
		t.Fatalf("GetDecisionRecord: %v", err)
	}
	if got.Decision == nil || got.Decision.Decision != domain.DecisionCharge {
		t.Errorf("decision = %+v", got.Decision)
	}
	if got.Inputs["appointment_value"] != 125.0 {
		t.Errorf("inputs = %v", got.Inputs)
	}

	t.Run("isolated by org", func(t *testing.T) {
		_, err := store.GetDecisionRecord(ctx, "org-2", "rec-1")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLRuleStore{driver: "postgres"}
	got := pg.rebind("SELECT * FROM rules WHERE id = ? AND version = ?")
	want := "SELECT * FROM rules WHERE id = $1 AND version = $2"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := &SQLRuleStore{driver: "sqlite"}
	if q := lite.rebind("? ?"); q != "? ?" {
		t.Errorf("sqlite rebind altered query: %q", q)
	}
}
