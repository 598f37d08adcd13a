package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-utility/dipper/internal/domain"
)

// stubSource is a controllable AnomalySource for session tests.
type stubSource struct {
	mu        sync.Mutex
	histories map[string]*domain.ReadingHistory
	fetchErr  map[string]error
	gates     map[string]chan struct{}
	submitErr error
	submitted []domain.AuditDecision
	calls     int
}

func newStubSource() *stubSource {
	return &stubSource{
		histories: make(map[string]*domain.ReadingHistory),
		fetchErr:  make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

func (s *stubSource) gate(nomen string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[nomen] = ch
	return ch
}

func (s *stubSource) FetchAnomalies(ctx context.Context) ([]domain.Anomaly, error) {
	return nil, nil
}

func (s *stubSource) FetchHistory(ctx context.Context, nomen string) (*domain.ReadingHistory, error) {
	s.mu.Lock()
	gate := s.gates[nomen]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fetchErr[nomen]; err != nil {
		return nil, err
	}
	if h, ok := s.histories[nomen]; ok {
		return h, nil
	}
	return nil, domain.NewReviewError(domain.KindNotFound, "no history for "+nomen, nil)
}

func (s *stubSource) SubmitAudit(ctx context.Context, decision domain.AuditDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, decision)
	return nil
}

func (s *stubSource) submitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubSource) Ping(ctx context.Context) error { return nil }
func (s *stubSource) Close() error                   { return nil }

func newTestSession(src domain.AnomalySource) *Session {
	return New(Config{
		TenantID: "rayon-34",
		Source:   src,
	})
}

func waitForState(t *testing.T, s *Session, want State) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if snap.State == want {
			return snap
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached state %q, last state %q", want, s.Snapshot().State)
	return Snapshot{}
}

func anomaly(nomen, name string, usage int, tags ...string) domain.Anomaly {
	return domain.Anomaly{Nomen: nomen, Name: name, Usage: usage, Status: tags}
}

func TestSelectLoadsHistory(t *testing.T) {
	src := newStubSource()
	src.histories["10002341"] = &domain.ReadingHistory{
		Entries: []domain.ReadingHistoryEntry{
			{Date: "2025-12-11", PreviousReading: 1000, CurrentReading: 1212},
		},
		Customer: &domain.Customer{Name: "BUDI HARTONO", Tariff: "2A"},
	}

	s := newTestSession(src)
	if got := s.Snapshot().State; got != StateIdle {
		t.Fatalf("new session state = %q, want idle", got)
	}

	if err := s.Select(context.Background(), anomaly("10002341", "BUDI HARTONO", 212, "EKSTRIM")); err != nil {
		t.Fatalf("Select: %v", err)
	}

	snap := waitForState(t, s, StateReviewing)
	if snap.Selected == nil || snap.Selected.Nomen != "10002341" {
		t.Fatalf("selected = %+v, want nomen 10002341", snap.Selected)
	}
	if len(snap.History.Entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(snap.History.Entries))
	}
	if snap.History.Customer == nil || snap.History.Customer.Name != "BUDI HARTONO" {
		t.Errorf("customer = %+v, want BUDI HARTONO", snap.History.Customer)
	}
	if snap.AuditStatus != domain.StatusRecheck {
		t.Errorf("default audit status = %q, want RE-CHECK", snap.AuditStatus)
	}
	if snap.AuditRemark != "" {
		t.Errorf("fresh selection has remark %q, want empty", snap.AuditRemark)
	}
}

func TestSelectResetsDraftFromPriorSelection(t *testing.T) {
	src := newStubSource()
	src.histories["A"] = &domain.ReadingHistory{}
	src.histories["B"] = &domain.ReadingHistory{}

	s := newTestSession(src)
	s.Select(context.Background(), anomaly("A", "FIRST", 10))
	waitForState(t, s, StateReviewing)

	if err := s.SetStatus(domain.StatusFraud); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := s.SetRemark("suspicious pattern"); err != nil {
		t.Fatalf("SetRemark: %v", err)
	}

	s.Select(context.Background(), anomaly("B", "SECOND", 20))
	snap := waitForState(t, s, StateReviewing)

	if snap.AuditStatus != domain.StatusRecheck {
		t.Errorf("audit status after reselect = %q, want RE-CHECK", snap.AuditStatus)
	}
	if snap.AuditRemark != "" {
		t.Errorf("remark after reselect = %q, want empty", snap.AuditRemark)
	}
}

func TestStaleHistoryResponseDiscarded(t *testing.T) {
	src := newStubSource()
	src.histories["A"] = &domain.ReadingHistory{
		Entries: []domain.ReadingHistoryEntry{{Date: "for-A", PreviousReading: 1, CurrentReading: 2}},
	}
	src.histories["B"] = &domain.ReadingHistory{
		Entries: []domain.ReadingHistoryEntry{{Date: "for-B", PreviousReading: 3, CurrentReading: 4}},
	}
	gateA := src.gate("A")

	s := newTestSession(src)
	s.Select(context.Background(), anomaly("A", "FIRST", 10))
	s.Select(context.Background(), anomaly("B", "SECOND", 20))

	snap := waitForState(t, s, StateReviewing)
	if snap.History.Entries[0].Date != "for-B" {
		t.Fatalf("history = %q, want for-B", snap.History.Entries[0].Date)
	}

	// Release A's fetch after B already resolved; it must not clobber B.
	close(gateA)
	time.Sleep(20 * time.Millisecond)

	snap = s.Snapshot()
	if snap.Selected.Nomen != "B" {
		t.Errorf("selected = %q, want B", snap.Selected.Nomen)
	}
	if snap.History.Entries[0].Date != "for-B" {
		t.Errorf("history after stale release = %q, want for-B", snap.History.Entries[0].Date)
	}
}

func TestHistoryFetchFailureStillAllowsAudit(t *testing.T) {
	src := newStubSource()
	src.fetchErr["X"] = domain.NewReviewError(domain.KindNetwork, "backend unreachable", nil)
	src.histories["X"] = &domain.ReadingHistory{}

	s := newTestSession(src)
	s.Select(context.Background(), anomaly("X", "NO HISTORY", 5))

	snap := waitForState(t, s, StateReviewing)
	if snap.HistoryErr == "" {
		t.Error("expected a history error message")
	}

	// The audit form stays editable and submittable.
	if err := s.SetRemark("verified on site"); err != nil {
		t.Fatalf("SetRemark after history failure: %v", err)
	}
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit after history failure: %v", err)
	}
	if got := s.Snapshot().State; got != StateIdle {
		t.Errorf("state after submit = %q, want idle", got)
	}
}

func TestSubmitEmptyRemarkRejectedWithoutNetworkCall(t *testing.T) {
	src := newStubSource()
	src.histories["A"] = &domain.ReadingHistory{}

	s := newTestSession(src)
	s.Select(context.Background(), anomaly("A", "FIRST", 10))
	waitForState(t, s, StateReviewing)

	err := s.Submit(context.Background())
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("Submit with empty remark: err = %v, want validation", err)
	}
	if src.submitCalls() != 0 {
		t.Errorf("submit calls = %d, want 0", src.submitCalls())
	}

	snap := s.Snapshot()
	if snap.State != StateReviewing {
		t.Errorf("state = %q, want reviewing", snap.State)
	}
	if snap.LastError == "" {
		t.Error("expected a user-facing message on the snapshot")
	}
}

func TestSubmitSuccessReturnsToIdle(t *testing.T) {
	src := newStubSource()
	src.histories["10002341"] = &domain.ReadingHistory{}

	s := newTestSession(src)
	s.Select(context.Background(), anomaly("10002341", "BUDI", 212))
	waitForState(t, s, StateReviewing)

	s.SetStatus(domain.StatusFraud)
	s.SetRemark("Meter tampered")

	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := s.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("state = %q, want idle", snap.State)
	}
	if snap.Selected != nil {
		t.Errorf("selected = %+v, want nil", snap.Selected)
	}
	if snap.AuditRemark != "" {
		t.Errorf("remark = %q, want cleared", snap.AuditRemark)
	}

	if len(src.submitted) != 1 {
		t.Fatalf("submitted = %d decisions, want 1", len(src.submitted))
	}
	d := src.submitted[0]
	if d.Nomen != "10002341" || d.Status != "FRAUD" || d.Remark != "Meter tampered" {
		t.Errorf("submitted decision = %+v", d)
	}
}

func TestSubmitFailurePreservesDraft(t *testing.T) {
	src := newStubSource()
	src.histories["A"] = &domain.ReadingHistory{}
	src.submitErr = domain.NewReviewError(domain.KindNetwork, "connection reset", nil)

	s := newTestSession(src)
	s.Select(context.Background(), anomaly("A", "FIRST", 10))
	waitForState(t, s, StateReviewing)

	s.SetStatus(domain.StatusMeterBroken)
	s.SetRemark("meter glass cracked, reading unreliable")

	err := s.Submit(context.Background())
	if !domain.IsKind(err, domain.KindNetwork) {
		t.Fatalf("Submit err = %v, want network", err)
	}

	snap := s.Snapshot()
	if snap.State != StateReviewing {
		t.Errorf("state = %q, want reviewing", snap.State)
	}
	if snap.AuditStatus != domain.StatusMeterBroken {
		t.Errorf("status = %q, want preserved MTR-RUSAK", snap.AuditStatus)
	}
	if snap.AuditRemark != "meter glass cracked, reading unreliable" {
		t.Errorf("remark = %q, want preserved verbatim", snap.AuditRemark)
	}
	if snap.LastError == "" {
		t.Error("expected failure message on snapshot")
	}

	// Retry after the transient failure succeeds with the same draft.
	src.mu.Lock()
	src.submitErr = nil
	src.mu.Unlock()
	if err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if got := s.Snapshot().State; got != StateIdle {
		t.Errorf("state after retry = %q, want idle", got)
	}
}

func TestClearDiscardsDraftFromAnyState(t *testing.T) {
	t.Run("FromReviewing", func(t *testing.T) {
		src := newStubSource()
		src.histories["A"] = &domain.ReadingHistory{}
		s := newTestSession(src)
		s.Select(context.Background(), anomaly("A", "FIRST", 10))
		waitForState(t, s, StateReviewing)
		s.SetRemark("half-written note")

		s.Clear(context.Background())

		snap := s.Snapshot()
		if snap.State != StateIdle {
			t.Errorf("state = %q, want idle", snap.State)
		}
		if snap.AuditRemark != "" {
			t.Errorf("remark = %q, want discarded", snap.AuditRemark)
		}
	})

	t.Run("FromLoading", func(t *testing.T) {
		src := newStubSource()
		src.histories["A"] = &domain.ReadingHistory{
			Entries: []domain.ReadingHistoryEntry{{Date: "late"}},
		}
		gate := src.gate("A")
		s := newTestSession(src)
		s.Select(context.Background(), anomaly("A", "FIRST", 10))

		s.Clear(context.Background())
		close(gate)
		time.Sleep(20 * time.Millisecond)

		snap := s.Snapshot()
		if snap.State != StateIdle {
			t.Errorf("state = %q, want idle after clear during load", snap.State)
		}
		if snap.History != nil {
			t.Errorf("history = %+v, want nil (late fetch ignored)", snap.History)
		}
	})

	t.Run("FromIdle", func(t *testing.T) {
		s := newTestSession(newStubSource())
		s.Clear(context.Background())
		if got := s.Snapshot().State; got != StateIdle {
			t.Errorf("state = %q, want idle", got)
		}
	})
}

func TestSetStatusRejectsUnknownValue(t *testing.T) {
	src := newStubSource()
	src.histories["A"] = &domain.ReadingHistory{}
	s := newTestSession(src)
	s.Select(context.Background(), anomaly("A", "FIRST", 10))
	waitForState(t, s, StateReviewing)

	err := s.SetStatus("MAYBE-LATER")
	if !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("SetStatus err = %v, want validation", err)
	}
	if got := s.Snapshot().AuditStatus; got != domain.StatusRecheck {
		t.Errorf("status = %q, want unchanged default", got)
	}
}

func TestCommandsRejectedWhileIdle(t *testing.T) {
	s := newTestSession(newStubSource())

	if err := s.SetStatus(domain.StatusValid); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("SetStatus while idle: err = %v, want validation", err)
	}
	if err := s.SetRemark("note"); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("SetRemark while idle: err = %v, want validation", err)
	}
	if err := s.Submit(context.Background()); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("Submit while idle: err = %v, want validation", err)
	}
}

func TestRegistryTenantIsolation(t *testing.T) {
	reg := NewRegistry(
		func(tenantID string) domain.AnomalySource { return newStubSource() },
		nil,
		domain.ReviewConfig{Statuses: domain.DefaultStatusSet(), DefaultStatus: domain.StatusRecheck},
	)

	s := reg.Create("rayon-34")
	if _, ok := reg.Get("rayon-34", s.ID()); !ok {
		t.Fatal("session not found for owning tenant")
	}
	if _, ok := reg.Get("rayon-57", s.ID()); ok {
		t.Fatal("session visible to the wrong tenant")
	}
	if reg.Remove("rayon-57", s.ID()) {
		t.Fatal("wrong tenant could remove the session")
	}
	if !reg.Remove("rayon-34", s.ID()) {
		t.Fatal("owner could not remove the session")
	}
	if reg.Len() != 0 {
		t.Errorf("registry len = %d, want 0", reg.Len())
	}
}
