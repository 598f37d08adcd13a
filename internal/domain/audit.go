package domain

import "time"

// AuditDecision is a reviewer's recorded disposition of an anomaly.
type AuditDecision struct {
	// Nomen must match the anomaly under review.
	Nomen string `json:"nomen"`

	// Status is one value from the configured closed status set.
	Status string `json:"status"`

	// Remark is the mandatory rationale. Enforced non-empty before any
	// network call; the backend does not check it.
	Remark string `json:"remark"`
}

// StatusSet is the closed vocabulary of audit dispositions. The backend
// is the source of truth for the vocabulary, so it is configuration
// rather than a hardcoded enum.
type StatusSet []string

// DefaultStatusSet matches the dashboard's audit panel.
func DefaultStatusSet() StatusSet {
	return StatusSet{
		StatusValid,
		StatusFraud,
		StatusRecheck,
		StatusReread,
		StatusMeterBroken,
		StatusEstimated,
	}
}

// Audit disposition values of the default vocabulary.
const (
	StatusValid       = "VALID"
	StatusFraud       = "FRAUD"
	StatusRecheck     = "RE-CHECK"
	StatusReread      = "RE-READ"
	StatusMeterBroken = "MTR-RUSAK"
	StatusEstimated   = "ESTIMASI"
)

// Contains reports whether s is part of the set.
func (ss StatusSet) Contains(s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// AuditRecord is a journaled, successfully submitted decision.
type AuditRecord struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Nomen       string    `json:"nomen"`
	Status      string    `json:"status"`
	Remark      string    `json:"remark"`
	AnomalyTags []string  `json:"anomalyTags,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}
