package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-utility/dipper/internal/domain"
)

// CachedSource decorates an AnomalySource with history caching.
// Reading histories do not change within a billing period, so repeat
// drill-downs on the same nomen are served from cache with a bounded
// TTL. Anomaly lists and submits always pass through.
type CachedSource struct {
	src      domain.AnomalySource
	cache    domain.Cache
	tenantID string
	ttl      time.Duration
}

// NewCachedSource wraps src with per-tenant history caching.
func NewCachedSource(src domain.AnomalySource, cache domain.Cache, tenantID string, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedSource{
		src:      src,
		cache:    cache,
		tenantID: tenantID,
		ttl:      ttl,
	}
}

// FetchAnomalies passes through to the wrapped source.
func (c *CachedSource) FetchAnomalies(ctx context.Context) ([]domain.Anomaly, error) {
	return c.src.FetchAnomalies(ctx)
}

// FetchHistory serves from cache when possible. Cache failures degrade
// to a source fetch; they are never surfaced to the reviewer.
func (c *CachedSource) FetchHistory(ctx context.Context, nomen string) (*domain.ReadingHistory, error) {
	if h, err := c.cache.GetHistory(ctx, c.tenantID, nomen); err == nil && h != nil {
		return h, nil
	} else if err != nil {
		slog.Warn("history cache read failed",
			"tenant_id", c.tenantID,
			"nomen", nomen,
			"error", err,
		)
	}

	h, err := c.src.FetchHistory(ctx, nomen)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetHistory(ctx, c.tenantID, nomen, h, c.ttl); err != nil {
		slog.Warn("history cache write failed",
			"tenant_id", c.tenantID,
			"nomen", nomen,
			"error", err,
		)
	}
	return h, nil
}

// SubmitAudit passes through and invalidates the cached history for
// the nomen, so the next drill-down reflects any backend-side change.
func (c *CachedSource) SubmitAudit(ctx context.Context, decision domain.AuditDecision) error {
	if err := c.src.SubmitAudit(ctx, decision); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, c.tenantID, historyKey(decision.Nomen)); err != nil {
		slog.Warn("history cache invalidation failed",
			"tenant_id", c.tenantID,
			"nomen", decision.Nomen,
			"error", err,
		)
	}
	return nil
}

// Ping checks the wrapped source.
func (c *CachedSource) Ping(ctx context.Context) error {
	return c.src.Ping(ctx)
}

// Close closes the wrapped source; the cache is shared and owned by
// the caller.
func (c *CachedSource) Close() error {
	return c.src.Close()
}

// historyKey mirrors the cache key used by Cache.GetHistory.
func historyKey(nomen string) string {
	return "history:" + nomen
}
