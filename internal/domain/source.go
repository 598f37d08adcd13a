package domain

import "context"

// AnomalySource is the typed client for the billing backend's review
// surface. Implementations are stateless: one network call per
// operation, no retries.
type AnomalySource interface {
	// FetchAnomalies returns the current flagged readings. A backend
	// success with zero anomalies yields an empty slice, not an error.
	FetchAnomalies(ctx context.Context) ([]Anomaly, error)

	// FetchHistory returns the last 12 billing periods for a nomen.
	// Fails with KindNotFound when the backend reports non-success,
	// KindNetwork on transport failure and KindDecode when the body
	// cannot be mapped.
	FetchHistory(ctx context.Context, nomen string) (*ReadingHistory, error)

	// SubmitAudit persists a decision. Fails with KindValidation before
	// any network call when the remark is empty; otherwise surfaces
	// KindNetwork or KindRejected with the server message attached.
	SubmitAudit(ctx context.Context, decision AuditDecision) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
