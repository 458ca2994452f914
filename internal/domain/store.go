// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingOrg is returned for calls that omit the organization ID. It
	// is a caller mistake, surfaced immediately and never retried.
	ErrMissingOrg = errors.New("organization_id is required")

	// ErrNotFound is returned when a rule or decision record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for malformed rule documents.
	ErrInvalidInput = errors.New("invalid input")
)

// RuleStore is the persistence contract for rule documents and decision
// records. All methods require orgID for strict multi-tenancy isolation.
// Implementations may fail with transient I/O errors; the resolver degrades
// to an empty candidate list rather than propagating them.
type RuleStore interface {
	// FetchRules returns the latest version of every rule for the given
	// organization and family prefix, regardless of status. Rows that fail
	// to deserialize are skipped and logged, never aborting the fetch.
	FetchRules(ctx context.Context, orgID string, familyPrefix string) ([]*Rule, error)

	// UpsertRule persists a new version of a rule, bumping Metadata.Version,
	// and returns the rule ID.
	UpsertRule(ctx context.Context, orgID string, rule *Rule) (string, error)

	// GetRule returns the latest version of a single rule.
	GetRule(ctx context.Context, orgID string, ruleID string) (*Rule, error)

	// Decision audit trail
	SaveDecisionRecord(ctx context.Context, orgID string, rec *DecisionRecord) error
	GetDecisionRecord(ctx context.Context, orgID string, recordID string) (*DecisionRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoreConfig holds configuration for rule store initialization.
type StoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
