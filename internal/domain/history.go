package domain

// ReadingHistoryEntry is one billing period in a customer's meter
// reading history. The backend returns the last 12 periods in its own
// order; callers must not reorder them.
type ReadingHistoryEntry struct {
	// Date is the reading date for the period, as formatted by the
	// backend.
	Date string `json:"cmr_rd_date"`

	// PreviousReading and CurrentReading are meter stand values.
	// CurrentReading may legitimately be below PreviousReading for a
	// negative-stand period.
	PreviousReading int `json:"cmr_prev_read"`
	CurrentReading  int `json:"cmr_reading"`

	// SkipCode and TroubleCode are operational codes recorded by the
	// field reader, when present.
	SkipCode    string `json:"cmr_skip_code,omitempty"`
	TroubleCode string `json:"cmr_trbl1_code,omitempty"`

	// SpecialMessage is a free-text note from the reading cycle.
	SpecialMessage string `json:"cmr_chg_spcl_msg,omitempty"`
}

// UsageDelta returns the consumed volume for the period. Negative
// deltas indicate a regressed stand.
func (e *ReadingHistoryEntry) UsageDelta() int {
	return e.CurrentReading - e.PreviousReading
}

// ReadingHistory is a customer's reading history plus the customer
// master data the backend returns with it.
type ReadingHistory struct {
	Entries  []ReadingHistoryEntry `json:"reading_history"`
	Customer *Customer             `json:"customer,omitempty"`
}
