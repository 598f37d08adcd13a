package journal

// Schema definitions for the Dipper audit trail.
// Compatible with both SQLite and PostgreSQL.

const schemaAuditRecords = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    nomen TEXT NOT NULL,
    status TEXT NOT NULL,
    remark TEXT NOT NULL,
    anomaly_tags TEXT,
    submitted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_records_tenant ON audit_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_records_nomen ON audit_records(tenant_id, nomen);
CREATE INDEX IF NOT EXISTS idx_audit_records_submitted ON audit_records(tenant_id, submitted_at);
CREATE INDEX IF NOT EXISTS idx_audit_records_status ON audit_records(tenant_id, status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAuditRecords,
	}
}
