package repository

// Schema definitions for the Kestrel rule store.
// Compatible with both SQLite and PostgreSQL.

const schemaRules = `
CREATE TABLE IF NOT EXISTS rules (
    id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    family_code TEXT NOT NULL,
    family_prefix TEXT NOT NULL,
    status TEXT NOT NULL,
    scope TEXT NOT NULL,
    conditions TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_by TEXT,
    created_at TIMESTAMP NOT NULL,
    version INTEGER NOT NULL,
    rollout TEXT,
    PRIMARY KEY (id, organization_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rules_org ON rules(organization_id);
CREATE INDEX IF NOT EXISTS idx_rules_family ON rules(organization_id, family_prefix);
CREATE INDEX IF NOT EXISTS idx_rules_status ON rules(organization_id, status);
`

const schemaDecisionRecords = `
CREATE TABLE IF NOT EXISTS decision_records (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    family TEXT NOT NULL,
    decision TEXT NOT NULL,
    inputs TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_records_org ON decision_records(organization_id);
CREATE INDEX IF NOT EXISTS idx_decision_records_family ON decision_records(organization_id, family);
CREATE INDEX IF NOT EXISTS idx_decision_records_created ON decision_records(organization_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRules,
		schemaDecisionRecords,
	}
}
