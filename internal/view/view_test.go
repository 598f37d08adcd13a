package view

import (
	"strings"
	"testing"

	"github.com/opensource-utility/dipper/internal/domain"
	"github.com/opensource-utility/dipper/internal/highlight"
	"github.com/opensource-utility/dipper/internal/session"
)

func newEngine(t *testing.T) *highlight.Engine {
	t.Helper()
	eng, err := highlight.NewEngine()
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.LoadRules(highlight.DefaultRules(100)); err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return eng
}

func TestBuildList(t *testing.T) {
	eng := newEngine(t)

	anomalies := []domain.Anomaly{
		{Nomen: "10002341", Name: "BUDI HARTONO", Usage: 212, Status: []string{"EKSTRIM"}},
		{Nomen: "10007755", Name: "SITI RAHAYU", Usage: -48, Status: []string{"STAND NEGATIF"}},
		{Nomen: "10013190", Name: "TOKO SUMBER AIR", Usage: 0, Status: []string{"PEMAKAIAN ZERO"}},
	}

	rows := BuildList(anomalies, eng)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0].Negative {
		t.Error("positive usage marked negative")
	}
	if !rows[1].Negative {
		t.Error("negative usage not marked")
	}
	if !containsFlag(rows[1].Flags, highlight.FlagNegative) {
		t.Errorf("expected %s flag, got %v", highlight.FlagNegative, rows[1].Flags)
	}
	if !containsFlag(rows[2].Flags, highlight.FlagZero) {
		t.Errorf("expected %s flag, got %v", highlight.FlagZero, rows[2].Flags)
	}

	// Rows keep the source order.
	for i, want := range []string{"10002341", "10007755", "10013190"} {
		if rows[i].Nomen != want {
			t.Errorf("row %d: expected nomen %s, got %s", i, want, rows[i].Nomen)
		}
	}
}

func TestRenderListTextMarksNegativeUsage(t *testing.T) {
	rows := []ListRow{
		{Nomen: "10007755", Name: "SITI RAHAYU", Usage: -48, Negative: true, Tags: []string{"STAND NEGATIF"}},
	}
	out := RenderListText(rows)
	if !strings.Contains(out, "! ") {
		t.Errorf("negative row not marked:\n%s", out)
	}
	if !strings.Contains(out, "STAND NEGATIF") {
		t.Errorf("tags missing:\n%s", out)
	}
}

func TestBuildDetailIdle(t *testing.T) {
	d := BuildDetail(session.Snapshot{State: session.StateIdle}, newEngine(t))
	if d.Nomen != "" {
		t.Errorf("unexpected nomen %q", d.Nomen)
	}
	if d.Form != nil {
		t.Error("form present without a selection")
	}
	if d.History == nil {
		t.Error("history should be an empty slice, not nil")
	}
}

func TestBuildDetailHistoryAndForm(t *testing.T) {
	eng := newEngine(t)

	snap := session.Snapshot{
		State: session.StateReviewing,
		Selected: &domain.Anomaly{
			Nomen:  "10002341",
			Name:   "BUDI HARTONO",
			Usage:  212,
			Status: []string{"EKSTRIM"},
		},
		History: &domain.ReadingHistory{
			Customer: &domain.Customer{Name: "BUDI HARTONO", Tariff: "2A"},
			Entries: []domain.ReadingHistoryEntry{
				{Date: "2026-06-01", PreviousReading: 1180, CurrentReading: 1260},
				{Date: "2026-07-01", PreviousReading: 1260, CurrentReading: 1472},
				{Date: "2026-08-01", PreviousReading: 1472, CurrentReading: 1424, SkipCode: "S1"},
			},
		},
		AuditStatus: domain.StatusRecheck,
		AuditRemark: "",
		Statuses:    domain.DefaultStatusSet(),
	}

	d := BuildDetail(snap, eng)

	if len(d.History) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(d.History))
	}
	if d.History[0].Delta != 80 {
		t.Errorf("row 0 delta: expected 80, got %d", d.History[0].Delta)
	}
	if !containsFlag(d.History[1].Flags, highlight.FlagExtreme) {
		t.Errorf("row 1: expected %s, got %v", highlight.FlagExtreme, d.History[1].Flags)
	}
	if !containsFlag(d.History[2].Flags, highlight.FlagNegative) {
		t.Errorf("row 2: expected %s, got %v", highlight.FlagNegative, d.History[2].Flags)
	}
	if !containsFlag(d.History[2].Flags, highlight.FlagSkipped) {
		t.Errorf("row 2: expected %s, got %v", highlight.FlagSkipped, d.History[2].Flags)
	}
	if d.CustomerName != "BUDI HARTONO" || d.Tariff != "2A" {
		t.Errorf("customer not mapped: %q/%q", d.CustomerName, d.Tariff)
	}

	if d.Form == nil {
		t.Fatal("form missing")
	}
	if d.Form.CanSubmit {
		t.Error("submit enabled with empty remark")
	}
	selected := 0
	for _, c := range d.Form.Statuses {
		if c.Selected {
			selected++
			if c.Value != domain.StatusRecheck {
				t.Errorf("expected %s selected, got %s", domain.StatusRecheck, c.Value)
			}
		}
	}
	if selected != 1 {
		t.Errorf("expected exactly one selected status, got %d", selected)
	}
}

func TestBuildDetailRemarkEnablesSubmit(t *testing.T) {
	snap := session.Snapshot{
		State:       session.StateReviewing,
		Selected:    &domain.Anomaly{Nomen: "10002341", Name: "BUDI HARTONO"},
		AuditStatus: domain.StatusFraud,
		AuditRemark: "meter bypass suspected",
		Statuses:    domain.DefaultStatusSet(),
	}
	d := BuildDetail(snap, nil)
	if !d.Form.CanSubmit {
		t.Error("submit should be enabled with a remark")
	}

	snap.AuditRemark = "   "
	d = BuildDetail(snap, nil)
	if d.Form.CanSubmit {
		t.Error("whitespace remark should not enable submit")
	}
}

func TestBuildDetailHistoryErrorKeepsForm(t *testing.T) {
	snap := session.Snapshot{
		State:       session.StateReviewing,
		Selected:    &domain.Anomaly{Nomen: "10007755", Name: "SITI RAHAYU"},
		HistoryErr:  "backend unreachable",
		AuditStatus: domain.StatusRecheck,
		Statuses:    domain.DefaultStatusSet(),
	}
	d := BuildDetail(snap, nil)
	if d.HistoryError != "backend unreachable" {
		t.Errorf("history error not surfaced: %q", d.HistoryError)
	}
	if d.Form == nil {
		t.Error("audit form must survive a history failure")
	}
	if len(d.History) != 0 {
		t.Errorf("expected empty history, got %d rows", len(d.History))
	}
}

func TestRenderDetailText(t *testing.T) {
	snap := session.Snapshot{
		State:    session.StateReviewing,
		Selected: &domain.Anomaly{Nomen: "10013190", Name: "TOKO SUMBER AIR", Status: []string{"PEMAKAIAN ZERO"}},
		History: &domain.ReadingHistory{
			Entries: []domain.ReadingHistoryEntry{
				{Date: "2026-08-01", PreviousReading: 845, CurrentReading: 845},
			},
		},
		AuditStatus: domain.StatusRecheck,
		Statuses:    domain.DefaultStatusSet(),
	}
	out := RenderDetailText(BuildDetail(snap, newEngine(t)))
	for _, want := range []string{"TOKO SUMBER AIR", "#10013190", "0 m3", "[RE-CHECK]", "remark required"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
