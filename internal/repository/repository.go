// Package repository provides rule store implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
	"github.com/google/uuid"
)

// Sentinel aliases so store callers inside the package read naturally.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRuleStore implements domain.RuleStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRuleStore struct {
	db     *sql.DB
	driver string
}

// New creates a new rule store based on configuration.
func New(cfg domain.StoreConfig) (domain.RuleStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLRuleStore{
		db:     db,
		driver: cfg.Driver,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLRuleStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// FetchRules returns the latest version of every rule for an organization and
// family prefix. Rows that fail to deserialize are skipped and logged so one
// malformed document cannot abort resolution.
func (s *SQLRuleStore) FetchRules(ctx context.Context, orgID string, familyPrefix string) ([]*domain.Rule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, domain.ErrMissingOrg)
	}

	query := `
		SELECT id, family_code, status, scope, conditions, priority, payload,
		       created_by, created_at, version, rollout
		FROM rules r
		WHERE organization_id = ? AND family_prefix = ?
		  AND version = (
			SELECT MAX(version) FROM rules
			WHERE id = r.id AND organization_id = r.organization_id
		  )
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), orgID, familyPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows, orgID)
		if err != nil {
			slog.Warn("skipping malformed rule document",
				"organization_id", orgID,
				"family_prefix", familyPrefix,
				"error", err,
			)
			continue
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner, orgID string) (*domain.Rule, error) {
	var rule domain.Rule
	var scope, conditions, payload string
	var createdBy, rollout sql.NullString

	if err := row.Scan(
		&rule.RuleID, &rule.FamilyCode, &rule.Status,
		&scope, &conditions, &rule.Priority, &payload,
		&createdBy, &rule.Metadata.CreatedAt, &rule.Metadata.Version, &rollout,
	); err != nil {
		return nil, err
	}

	rule.Metadata.CreatedBy = createdBy.String

	if err := json.Unmarshal([]byte(scope), &rule.Scope); err != nil {
		return nil, fmt.Errorf("rule %s: bad scope: %w", rule.RuleID, err)
	}
	if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("rule %s: bad conditions: %w", rule.RuleID, err)
	}
	if err := json.Unmarshal([]byte(payload), &rule.Payload); err != nil {
		return nil, fmt.Errorf("rule %s: bad payload: %w", rule.RuleID, err)
	}
	if rollout.Valid && rollout.String != "" {
		if err := json.Unmarshal([]byte(rollout.String), &rule.Metadata.Rollout); err != nil {
			return nil, fmt.Errorf("rule %s: bad rollout: %w", rule.RuleID, err)
		}
	}

	if rule.Scope.OrganizationID == "" {
		rule.Scope.OrganizationID = orgID
	}

	return &rule, nil
}

// UpsertRule persists a new version of a rule and returns its ID. The
// organization is immutable and Metadata.Version strictly increases.
func (s *SQLRuleStore) UpsertRule(ctx context.Context, orgID string, rule *domain.Rule) (string, error) {
	if orgID == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidInput, domain.ErrMissingOrg)
	}
	if rule == nil {
		return "", fmt.Errorf("%w: rule is required", ErrInvalidInput)
	}
	if rule.FamilyCode == "" {
		return "", fmt.Errorf("%w: family_code is required", ErrInvalidInput)
	}
	if rule.Scope.OrganizationID == "" {
		rule.Scope.OrganizationID = orgID
	}
	if rule.Scope.OrganizationID != orgID {
		return "", fmt.Errorf("%w: organization_id is immutable", ErrInvalidInput)
	}
	if rule.Conditions.EffectiveFrom.IsZero() {
		rule.Conditions.EffectiveFrom = time.Now().UTC()
	}
	if rule.Conditions.EffectiveTo != nil && rule.Conditions.EffectiveTo.Before(rule.Conditions.EffectiveFrom) {
		return "", fmt.Errorf("%w: effective_to precedes effective_from", ErrInvalidInput)
	}
	switch rule.Status {
	case domain.StatusActive, domain.StatusInactive, domain.StatusDraft:
	case "":
		rule.Status = domain.StatusActive
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, rule.Status)
	}

	if rule.RuleID == "" {
		rule.RuleID = uuid.New().String()
	}

	var current sql.NullInt64
	verQuery := `SELECT MAX(version) FROM rules WHERE id = ? AND organization_id = ?`
	if err := s.db.QueryRowContext(ctx, s.rebind(verQuery), rule.RuleID, orgID).Scan(&current); err != nil {
		return "", err
	}
	rule.Metadata.Version = int(current.Int64) + 1
	if rule.Metadata.CreatedAt.IsZero() {
		rule.Metadata.CreatedAt = time.Now().UTC()
	}

	scope, _ := json.Marshal(rule.Scope)
	conditions, _ := json.Marshal(rule.Conditions)
	payload, _ := json.Marshal(rule.Payload)
	rollout := ""
	if rule.Metadata.Rollout != nil {
		b, _ := json.Marshal(rule.Metadata.Rollout)
		rollout = string(b)
	}

	query := `
		INSERT INTO rules (
			id, organization_id, family_code, family_prefix, status,
			scope, conditions, priority, payload,
			created_by, created_at, version, rollout
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rule.RuleID, orgID, rule.FamilyCode, domain.FamilyPrefix(rule.FamilyCode), string(rule.Status),
		string(scope), string(conditions), rule.Priority, string(payload),
		rule.Metadata.CreatedBy, rule.Metadata.CreatedAt, rule.Metadata.Version, rollout,
	)
	if err != nil {
		return "", err
	}

	return rule.RuleID, nil
}

// GetRule returns the latest version of a single rule.
func (s *SQLRuleStore) GetRule(ctx context.Context, orgID string, ruleID string) (*domain.Rule, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, domain.ErrMissingOrg)
	}

	query := `
		SELECT id, family_code, status, scope, conditions, priority, payload,
		       created_by, created_at, version, rollout
		FROM rules
		WHERE organization_id = ? AND id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, s.rebind(query), orgID, ruleID)
	rule, err := scanRule(row, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// SaveDecisionRecord stores an audit record for a rendered decision.
func (s *SQLRuleStore) SaveDecisionRecord(ctx context.Context, orgID string, rec *domain.DecisionRecord) error {
	if orgID == "" {
		return fmt.Errorf("%w: %s", ErrInvalidInput, domain.ErrMissingOrg)
	}

	decision, _ := json.Marshal(rec.Decision)
	inputs, _ := json.Marshal(rec.Inputs)

	query := `
		INSERT INTO decision_records (
			id, organization_id, family, decision, inputs, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		rec.ID, orgID, rec.Family, string(decision), string(inputs), rec.CreatedAt,
	)
	return err
}

// GetDecisionRecord retrieves an audit record by ID.
func (s *SQLRuleStore) GetDecisionRecord(ctx context.Context, orgID string, recordID string) (*domain.DecisionRecord, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, domain.ErrMissingOrg)
	}

	query := `
		SELECT id, organization_id, family, decision, inputs, created_at
		FROM decision_records
		WHERE organization_id = ? AND id = ?
	`

	var rec domain.DecisionRecord
	var decision, inputs string

	err := s.db.QueryRowContext(ctx, s.rebind(query), orgID, recordID).Scan(
		&rec.ID, &rec.OrganizationID, &rec.Family, &decision, &inputs, &rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(decision), &rec.Decision); err != nil {
		return nil, fmt.Errorf("record %s: bad decision: %w", rec.ID, err)
	}
	if inputs != "" && inputs != "null" {
		if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
			return nil, fmt.Errorf("record %s: bad inputs: %w", rec.ID, err)
		}
	}

	return &rec, nil
}

// Ping checks database connectivity.
func (s *SQLRuleStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLRuleStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLRuleStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
