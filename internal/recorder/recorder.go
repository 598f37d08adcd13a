// Package recorder persists submitted audit decisions from the EventBus.
package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-utility/dipper/internal/domain"
)

// Recorder consumes audit submissions asynchronously and writes them
// to the journal. Submissions already succeeded against the billing
// backend by the time they reach the bus, so journal failures are
// logged rather than surfaced to the reviewer.
type Recorder struct {
	bus     domain.EventBus
	journal domain.Journal

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds recorder configuration.
type Config struct {
	// TenantIDs is the list of branches to record (empty = global)
	TenantIDs []string
}

// New creates a new recorder.
func New(bus domain.EventBus, journal domain.Journal) *Recorder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		bus:     bus,
		journal: journal,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins recording submissions for the given branches.
func (r *Recorder) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return r.startGlobal()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := r.startTenant(tenantID); err != nil {
			slog.Error("failed to start recorder for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("recorders started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobal subscribes under the wildcard tenant so one consumer
// records every branch's submissions. This is the default mode; the
// journal row still lands under the submitting tenant, taken from the
// message.
func (r *Recorder) startGlobal() error {
	sub, err := r.bus.Subscribe(r.ctx, domain.TenantWildcard, domain.TopicAuditSubmitted, r.handleMessage)
	if err != nil {
		return err
	}
	r.subscriptions = append(r.subscriptions, sub)

	slog.Info("global recorder started")
	return nil
}

func (r *Recorder) startTenant(tenantID string) error {
	sub, err := r.bus.Subscribe(r.ctx, tenantID, domain.TopicAuditSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return r.recordAudit(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	r.subscriptions = append(r.subscriptions, sub)

	slog.Info("tenant recorder started",
		"tenant_id", tenantID,
		"topic", domain.TopicAuditSubmitted,
	)

	return nil
}

func (r *Recorder) handleMessage(ctx context.Context, msg *domain.Message) error {
	return r.recordAudit(ctx, msg.TenantID, msg)
}

// recordAudit parses one submission and writes it to the journal.
func (r *Recorder) recordAudit(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var rec domain.AuditRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		slog.Error("failed to parse audit message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if rec.TenantID != "" {
		tenantID = rec.TenantID
	}
	rec.TenantID = tenantID

	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}

	if err := r.journal.SaveAudit(ctx, tenantID, &rec); err != nil {
		slog.Error("failed to save audit record",
			"audit_id", rec.ID,
			"nomen", rec.Nomen,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("audit recorded",
		"audit_id", rec.ID,
		"nomen", rec.Nomen,
		"tenant_id", tenantID,
		"status", rec.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all recorders.
func (r *Recorder) Stop() error {
	r.cancel()

	// Unsubscribe all
	for _, sub := range r.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	r.subscriptions = nil

	r.wg.Wait()

	slog.Info("recorders stopped")
	return nil
}

// Stats returns recorder statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current recorder statistics.
func (r *Recorder) GetStats() Stats {
	topics := make([]string, len(r.subscriptions))
	for i, sub := range r.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(r.subscriptions),
		Topics:            topics,
	}
}
