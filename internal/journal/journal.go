// Package journal provides the audit trail persistence.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-utility/dipper/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLJournal implements domain.Journal using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLJournal struct {
	db     *sql.DB
	driver string
}

// New creates a new journal based on configuration.
func New(cfg domain.JournalConfig) (domain.Journal, error) {
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

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	j := &SQLJournal{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return j, nil
}

func (j *SQLJournal) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := j.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAudit stores a submitted decision with tenant isolation.
func (j *SQLJournal) SaveAudit(ctx context.Context, tenantID string, rec *domain.AuditRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rec.Nomen == "" {
		return fmt.Errorf("%w: nomen is required", ErrInvalidInput)
	}

	tags, _ := json.Marshal(rec.AnomalyTags)

	query := `
		INSERT INTO audit_records (
			id, tenant_id, nomen, status, remark, anomaly_tags, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, j.rebind(query),
		rec.ID, tenantID, rec.Nomen,
		rec.Status, rec.Remark,
		string(tags), rec.SubmittedAt,
	)
	return err
}

// GetAudit retrieves a record by ID with tenant isolation.
func (j *SQLJournal) GetAudit(ctx context.Context, tenantID string, id string) (*domain.AuditRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, nomen, status, remark, anomaly_tags, submitted_at
		FROM audit_records
		WHERE tenant_id = ? AND id = ?
	`

	var rec domain.AuditRecord
	var tags string

	err := j.db.QueryRowContext(ctx, j.rebind(query), tenantID, id).Scan(
		&rec.ID, &rec.TenantID, &rec.Nomen,
		&rec.Status, &rec.Remark,
		&tags, &rec.SubmittedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if tags != "" {
		json.Unmarshal([]byte(tags), &rec.AnomalyTags)
	}

	return &rec, nil
}

// ListAudits retrieves records for a tenant, newest first.
// An empty nomen matches all customers.
func (j *SQLJournal) ListAudits(ctx context.Context, tenantID string, nomen string, limit int) ([]*domain.AuditRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, nomen, status, remark, anomaly_tags, submitted_at
		FROM audit_records
		WHERE tenant_id = ?
		  AND (? = '' OR nomen = ?)
		ORDER BY submitted_at DESC
		LIMIT ?
	`

	rows, err := j.db.QueryContext(ctx, j.rebind(query), tenantID, nomen, nomen, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var tags string

		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.Nomen,
			&rec.Status, &rec.Remark,
			&tags, &rec.SubmittedAt,
		); err != nil {
			return nil, err
		}

		if tags != "" {
			json.Unmarshal([]byte(tags), &rec.AnomalyTags)
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Ping checks database connectivity.
func (j *SQLJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database connection.
func (j *SQLJournal) Close() error {
	return j.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (j *SQLJournal) rebind(query string) string {
	if j.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
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
