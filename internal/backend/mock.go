package backend

import (
	"context"
	"sync"

	"github.com/opensource-utility/dipper/internal/domain"
)

// MockSource implements domain.AnomalySource from in-memory fixtures.
// Used when the gateway runs with the mock toggle enabled, so the
// review workflow can be exercised without the billing backend.
type MockSource struct {
	mu        sync.Mutex
	anomalies []domain.Anomaly
	histories map[string]*domain.ReadingHistory
	submitted []domain.AuditDecision
}

// NewMockSource creates a mock source seeded with representative
// fixture data.
func NewMockSource() *MockSource {
	m := &MockSource{
		histories: make(map[string]*domain.ReadingHistory),
	}
	m.seed()
	return m
}

func (m *MockSource) seed() {
	m.anomalies = []domain.Anomaly{
		{
			Nomen:  "10002341",
			Name:   "BUDI HARTONO",
			Usage:  212,
			Status: []string{"EKSTRIM"},
			Details: &domain.AnomalyDetails{
				AnomalyReason: "EKSTRIM (>150 m3)",
			},
		},
		{
			Nomen:  "10007755",
			Name:   "SITI RAHAYU",
			Usage:  -48,
			Status: []string{"STAND NEGATIF"},
			Details: &domain.AnomalyDetails{
				AnomalyReason: "TURUN EKSTRIM (<= -50%)",
			},
		},
		{
			Nomen:  "10013190",
			Name:   "TOKO SUMBER AIR",
			Usage:  0,
			Status: []string{"PEMAKAIAN ZERO", "EKSTRIM"},
			Details: &domain.AnomalyDetails{
				AnomalyReason: "PEMAKAIAN ZERO",
				SkipDesc:      "3A - RUMAH KOSONG",
			},
		},
	}

	m.histories["10002341"] = &domain.ReadingHistory{
		Customer: &domain.Customer{Name: "BUDI HARTONO", Tariff: "2A"},
		Entries: []domain.ReadingHistoryEntry{
			{Date: "2025-09-12", PreviousReading: 1180, CurrentReading: 1208},
			{Date: "2025-10-13", PreviousReading: 1208, CurrentReading: 1233},
			{Date: "2025-11-12", PreviousReading: 1233, CurrentReading: 1260},
			{Date: "2025-12-11", PreviousReading: 1260, CurrentReading: 1472, SpecialMessage: "pipa bocor di halaman"},
		},
	}
	m.histories["10007755"] = &domain.ReadingHistory{
		Customer: &domain.Customer{Name: "SITI RAHAYU", Tariff: "2B"},
		Entries: []domain.ReadingHistoryEntry{
			{Date: "2025-11-12", PreviousReading: 820, CurrentReading: 844},
			{Date: "2025-12-11", PreviousReading: 844, CurrentReading: 796, TroubleCode: "T4"},
		},
	}
	m.histories["10013190"] = &domain.ReadingHistory{
		Customer: &domain.Customer{Name: "TOKO SUMBER AIR", Tariff: "3A"},
		Entries: []domain.ReadingHistoryEntry{
			{Date: "2025-11-12", PreviousReading: 2210, CurrentReading: 2210, SkipCode: "3A"},
			{Date: "2025-12-11", PreviousReading: 2210, CurrentReading: 2210, SkipCode: "3A"},
		},
	}
}

// FetchAnomalies returns the fixture anomalies.
func (m *MockSource) FetchAnomalies(ctx context.Context) ([]domain.Anomaly, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Anomaly, len(m.anomalies))
	copy(out, m.anomalies)
	return out, nil
}

// FetchHistory returns the fixture history for a nomen.
func (m *MockSource) FetchHistory(ctx context.Context, nomen string) (*domain.ReadingHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[nomen]
	if !ok {
		return nil, domain.NewReviewError(domain.KindNotFound, "no history for nomen "+nomen, nil)
	}
	return h, nil
}

// SubmitAudit records the decision in memory.
func (m *MockSource) SubmitAudit(ctx context.Context, decision domain.AuditDecision) error {
	if err := validateDecision(decision); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, decision)
	return nil
}

// Submitted returns all decisions recorded so far.
func (m *MockSource) Submitted() []domain.AuditDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditDecision, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// Ping always succeeds.
func (m *MockSource) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockSource) Close() error { return nil }
