package domain

import "context"

// Journal is the audit trail for submitted decisions.
// All methods require tenantID for strict multi-branch isolation.
type Journal interface {
	// SaveAudit stores one submitted decision.
	SaveAudit(ctx context.Context, tenantID string, rec *AuditRecord) error

	// GetAudit retrieves one record by ID.
	GetAudit(ctx context.Context, tenantID string, id string) (*AuditRecord, error)

	// ListAudits retrieves records for a tenant, newest first. An empty
	// nomen matches all customers.
	ListAudits(ctx context.Context, tenantID string, nomen string, limit int) ([]*AuditRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// JournalConfig holds configuration for journal initialization.
type JournalConfig struct {
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
	MaxOpenConns int
	MaxIdleConns int
}
