// Package domain defines the core interfaces and types for Dipper.
package domain

// Anomaly is a flagged meter reading awaiting human review.
// Anomalies are produced by the billing backend during file analysis and
// are never mutated on this side; Nomen identifies one uniquely for the
// duration of a review session.
type Anomaly struct {
	// Nomen is the utility's customer/account identifier.
	Nomen string `json:"nomen"`

	// Name is the customer display name.
	Name string `json:"name"`

	// Usage is the signed volumetric delta in cubic meters for the
	// flagged period. Negative means a regressed meter stand.
	Usage int `json:"usage"`

	// Status holds the backend's anomaly tags (e.g. "EKSTRIM",
	// "STAND NEGATIF", "PEMAKAIAN ZERO"). The vocabulary is owned by
	// the backend and is never validated here; a single anomaly can
	// carry several tags at once.
	Status []string `json:"status"`

	// Details is optional diagnostic text from the backend.
	Details *AnomalyDetails `json:"details,omitempty"`
}

// AnomalyDetails carries backend diagnostic text for an anomaly.
type AnomalyDetails struct {
	AnomalyReason string `json:"anomaly_reason"`
	SkipDesc      string `json:"skip_desc"`
}

// HasTag reports whether the anomaly carries the given status tag.
func (a *Anomaly) HasTag(tag string) bool {
	for _, s := range a.Status {
		if s == tag {
			return true
		}
	}
	return false
}

// Customer is the per-account master data returned alongside a reading
// history.
type Customer struct {
	Name   string `json:"NAMA"`
	Tariff string `json:"TARIFF"`
}
