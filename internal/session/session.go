// Package session holds the review workflow state machine.
//
// A Session is the single source of truth for what one auditor is
// looking at and doing: the selected anomaly, its fetched history and
// the in-progress audit form. All mutations go through commands so the
// transition rules live in one place.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-utility/dipper/internal/domain"
)

// State is the review slice of the workflow.
type State string

const (
	// StateIdle means no anomaly is selected.
	StateIdle State = "idle"

	// StateLoading means an anomaly is selected and its history fetch
	// is in flight.
	StateLoading State = "loading"

	// StateReviewing means the history loaded (or failed) and the
	// audit form is editable.
	StateReviewing State = "reviewing"

	// StateSubmitting means an audit submit is in flight.
	StateSubmitting State = "submitting"
)

// Config holds the collaborators and vocabulary for a session.
type Config struct {
	TenantID      string
	Source        domain.AnomalySource
	Bus           domain.EventBus // optional
	Statuses      domain.StatusSet
	DefaultStatus string

	// FetchTimeout bounds the async history fetch.
	FetchTimeout time.Duration
}

// Session serializes one auditor's review workflow. Safe for
// concurrent use; commands are applied strictly one at a time.
type Session struct {
	id  string
	cfg Config

	mu          sync.Mutex
	state       State
	selected    *domain.Anomaly
	history     *domain.ReadingHistory
	historyErr  string
	auditStatus string
	auditRemark string
	lastErr     string

	// fetchSeq tags each in-flight history fetch so a stale response
	// for anomaly A cannot overwrite state after the auditor moved on
	// to anomaly B. submitSeq does the same for submits abandoned via
	// Clear.
	fetchSeq  uint64
	submitSeq uint64
}

// New creates an idle session.
func New(cfg Config) *Session {
	if len(cfg.Statuses) == 0 {
		cfg.Statuses = domain.DefaultStatusSet()
	}
	if cfg.DefaultStatus == "" {
		cfg.DefaultStatus = domain.StatusRecheck
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &Session{
		id:          uuid.New().String(),
		cfg:         cfg,
		state:       StateIdle,
		auditStatus: cfg.DefaultStatus,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// TenantID returns the owning tenant.
func (s *Session) TenantID() string { return s.cfg.TenantID }

// Select opens an anomaly for review. Any prior selection, history and
// draft remark are discarded; the audit status resets to the
// configured default. A fetch still in flight for a previous selection
// is superseded (last selection wins).
func (s *Session) Select(ctx context.Context, a domain.Anomaly) error {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return domain.NewReviewError(domain.KindValidation, "an audit submit is in flight", nil)
	}

	s.fetchSeq++
	seq := s.fetchSeq
	anom := a
	s.state = StateLoading
	s.selected = &anom
	s.history = nil
	s.historyErr = ""
	s.auditStatus = s.cfg.DefaultStatus
	s.auditRemark = ""
	s.lastErr = ""
	s.mu.Unlock()

	s.publish(ctx, domain.TopicAnomalySelected, map[string]string{
		"sessionId": s.id,
		"nomen":     a.Nomen,
	})

	go s.fetchHistory(seq, a.Nomen)
	return nil
}

// fetchHistory runs the async history fetch for one selection.
func (s *Session) fetchHistory(seq uint64, nomen string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	h, err := s.cfg.Source.FetchHistory(ctx, nomen)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stale response: the auditor selected something else or cleared.
	if seq != s.fetchSeq || s.selected == nil || s.selected.Nomen != nomen {
		return
	}

	s.state = StateReviewing
	if err != nil {
		// The audit form stays usable even without history.
		s.history = &domain.ReadingHistory{}
		s.historyErr = displayMessage(err)
		slog.Warn("history fetch failed",
			"tenant_id", s.cfg.TenantID,
			"nomen", nomen,
			"error", err,
		)
		return
	}
	s.history = h
	s.historyErr = ""
}

// SetStatus updates the draft audit status. Only valid while reviewing
// and only for values of the configured vocabulary.
func (s *Session) SetStatus(status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing {
		return domain.NewReviewError(domain.KindValidation, "no anomaly under review", nil)
	}
	if !s.cfg.Statuses.Contains(status) {
		return domain.NewReviewError(domain.KindValidation, "unknown audit status: "+status, nil)
	}
	s.auditStatus = status
	return nil
}

// SetRemark updates the draft remark.
func (s *Session) SetRemark(remark string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing {
		return domain.NewReviewError(domain.KindValidation, "no anomaly under review", nil)
	}
	s.auditRemark = remark
	return nil
}

// Submit sends the audit decision to the backend. An empty remark is
// rejected synchronously without touching the network or the state
// machine. On success the session returns to idle; on failure the
// draft status and remark survive verbatim so the auditor's work is
// not lost.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReviewing || s.selected == nil {
		s.mu.Unlock()
		return domain.NewReviewError(domain.KindValidation, "no anomaly under review", nil)
	}
	if strings.TrimSpace(s.auditRemark) == "" {
		err := domain.NewReviewError(domain.KindValidation, "audit remark is required", nil)
		s.lastErr = err.Message
		s.mu.Unlock()
		return err
	}

	decision := domain.AuditDecision{
		Nomen:  s.selected.Nomen,
		Status: s.auditStatus,
		Remark: s.auditRemark,
	}
	tags := append([]string(nil), s.selected.Status...)
	s.state = StateSubmitting
	s.lastErr = ""
	s.submitSeq++
	seq := s.submitSeq
	s.mu.Unlock()

	err := s.cfg.Source.SubmitAudit(ctx, decision)

	s.mu.Lock()
	abandoned := seq != s.submitSeq
	if err != nil {
		if !abandoned {
			// Transient failure: keep the draft, back to the form.
			s.state = StateReviewing
			s.lastErr = displayMessage(err)
		}
		s.mu.Unlock()
		return err
	}
	if !abandoned {
		s.reset()
	}
	s.mu.Unlock()

	rec := &domain.AuditRecord{
		ID:          uuid.New().String(),
		TenantID:    s.cfg.TenantID,
		Nomen:       decision.Nomen,
		Status:      decision.Status,
		Remark:      decision.Remark,
		AnomalyTags: tags,
		SubmittedAt: time.Now().UTC(),
	}
	s.publish(ctx, domain.TopicAuditSubmitted, rec)
	return nil
}

// Clear abandons the current selection from any state and returns the
// session to idle. Draft state is discarded; an in-flight fetch or
// submit is superseded and its completion is ignored.
func (s *Session) Clear(ctx context.Context) {
	s.mu.Lock()
	s.fetchSeq++
	s.submitSeq++
	s.reset()
	s.mu.Unlock()

	s.publish(ctx, domain.TopicSessionCleared, map[string]string{
		"sessionId": s.id,
	})
}

// reset returns to idle with a fresh draft. Caller holds the lock.
func (s *Session) reset() {
	s.state = StateIdle
	s.selected = nil
	s.history = nil
	s.historyErr = ""
	s.auditStatus = s.cfg.DefaultStatus
	s.auditRemark = ""
	s.lastErr = ""
}

// Snapshot is a point-in-time copy of the session for rendering.
type Snapshot struct {
	SessionID   string                 `json:"sessionId"`
	State       State                  `json:"state"`
	Selected    *domain.Anomaly        `json:"selected,omitempty"`
	History     *domain.ReadingHistory `json:"history,omitempty"`
	HistoryErr  string                 `json:"historyError,omitempty"`
	AuditStatus string                 `json:"auditStatus"`
	AuditRemark string                 `json:"auditRemark"`
	Statuses    domain.StatusSet       `json:"statuses"`
	LastError   string                 `json:"lastError,omitempty"`
}

// Snapshot returns a copy of the current state for the view layer.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		HistoryErr:  s.historyErr,
		AuditStatus: s.auditStatus,
		AuditRemark: s.auditRemark,
		Statuses:    append(domain.StatusSet(nil), s.cfg.Statuses...),
		LastError:   s.lastErr,
	}
	if s.selected != nil {
		sel := *s.selected
		snap.Selected = &sel
	}
	if s.history != nil {
		h := domain.ReadingHistory{
			Entries: append([]domain.ReadingHistoryEntry(nil), s.history.Entries...),
		}
		if s.history.Customer != nil {
			c := *s.history.Customer
			h.Customer = &c
		}
		snap.History = &h
	}
	return snap
}

// publish sends a workflow event when a bus is configured. Event
// delivery is best effort; the workflow never blocks on it.
func (s *Session) publish(ctx context.Context, topic string, payload any) {
	if s.cfg.Bus == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.cfg.Bus.Publish(ctx, s.cfg.TenantID, topic, body); err != nil {
		slog.Warn("event publish failed",
			"tenant_id", s.cfg.TenantID,
			"topic", topic,
			"error", err,
		)
	}
}

// displayMessage extracts a user-facing message from an error.
func displayMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
