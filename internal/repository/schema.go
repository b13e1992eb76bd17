package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaResources = `
CREATE TABLE IF NOT EXISTS resources (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    url TEXT NOT NULL,
    host TEXT NOT NULL,
    ml_score REAL NOT NULL,
    features TEXT NOT NULL,
    profile TEXT,
    submitted_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_resources_tenant ON resources(tenant_id);
CREATE INDEX IF NOT EXISTS idx_resources_host ON resources(tenant_id, host);
CREATE INDEX IF NOT EXISTS idx_resources_submitted ON resources(tenant_id, submitted_at);
`

const schemaVerdicts = `
CREATE TABLE IF NOT EXISTS verdicts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    resource_id TEXT NOT NULL,
    url TEXT NOT NULL,
    host TEXT NOT NULL,
    decision TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    profile TEXT NOT NULL,
    final_score REAL NOT NULL,
    ml_score REAL NOT NULL,
    trust_score REAL NOT NULL,
    override_factor REAL NOT NULL,
    tier TEXT NOT NULL,
    safety_gate INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    result TEXT NOT NULL,
    escalations TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_tenant ON verdicts(tenant_id);
CREATE INDEX IF NOT EXISTS idx_verdicts_resource ON verdicts(tenant_id, resource_id);
CREATE INDEX IF NOT EXISTS idx_verdicts_host ON verdicts(tenant_id, host, decision);
CREATE INDEX IF NOT EXISTS idx_verdicts_timestamp ON verdicts(tenant_id, timestamp);
`

const schemaEscalationRules = `
CREATE TABLE IF NOT EXISTS escalation_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    escalate_to TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_escalation_rules_tenant ON escalation_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_escalation_rules_enabled ON escalation_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaResources,
		schemaVerdicts,
		schemaEscalationRules,
	}
}
