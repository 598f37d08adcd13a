// Package backend provides typed clients for the billing backend's
// review surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-utility/dipper/internal/domain"
)

var tracer = otel.Tracer("dipper-backend")

// HTTPSource implements domain.AnomalySource against the live billing
// backend. Stateless: one network call per operation, no retries.
type HTTPSource struct {
	base   string
	client *http.Client
}

// NewHTTPSource creates a source for the configured backend.
func NewHTTPSource(cfg domain.BackendConfig) (*HTTPSource, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &HTTPSource{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// FetchAnomalies returns the current flagged readings.
func (s *HTTPSource) FetchAnomalies(ctx context.Context) ([]domain.Anomaly, error) {
	ctx, span := tracer.Start(ctx, "backend.FetchAnomalies")
	defer span.End()

	env, err := s.get(ctx, s.base+"/anomalies")
	if err != nil {
		return nil, err
	}
	if env.Status != wireSuccess {
		return nil, domain.NewReviewError(domain.KindRejected, serverMessage(env), nil)
	}

	var data anomalyListData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("anomaly.count", len(data.Anomalies)))

	// A successful response with no anomalies is an empty list, not an
	// error.
	if data.Anomalies == nil {
		return []domain.Anomaly{}, nil
	}
	return data.Anomalies, nil
}

// FetchHistory returns the reading history for a nomen.
func (s *HTTPSource) FetchHistory(ctx context.Context, nomen string) (*domain.ReadingHistory, error) {
	ctx, span := tracer.Start(ctx, "backend.FetchHistory")
	span.SetAttributes(attribute.String("customer.nomen", nomen))
	defer span.End()

	if nomen == "" {
		return nil, domain.NewReviewError(domain.KindValidation, "nomen is required", nil)
	}

	env, err := s.get(ctx, s.base+"/detective/"+url.PathEscape(nomen))
	if err != nil {
		return nil, err
	}
	if env.Status != wireSuccess {
		return nil, domain.NewReviewError(domain.KindNotFound, serverMessage(env), nil)
	}

	var data detectiveData
	if err := decodeData(env.Data, &data); err != nil {
		return nil, err
	}

	return &domain.ReadingHistory{
		Entries:  data.ReadingHistory,
		Customer: data.Customer,
	}, nil
}

// SubmitAudit persists a decision. The remark precondition is checked
// before any network traffic so an invalid decision never costs a
// round trip.
func (s *HTTPSource) SubmitAudit(ctx context.Context, decision domain.AuditDecision) error {
	ctx, span := tracer.Start(ctx, "backend.SubmitAudit")
	span.SetAttributes(
		attribute.String("customer.nomen", decision.Nomen),
		attribute.String("audit.status", decision.Status),
	)
	defer span.End()

	if err := validateDecision(decision); err != nil {
		return err
	}

	body, err := json.Marshal(auditSaveRequest{
		Nomen:  decision.Nomen,
		Remark: decision.Remark,
		Status: decision.Status,
	})
	if err != nil {
		return domain.NewReviewError(domain.KindDecode, "failed to encode audit decision", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/audit/save", bytes.NewReader(body))
	if err != nil {
		return domain.NewReviewError(domain.KindNetwork, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := s.do(req)
	if err != nil {
		return err
	}
	if env.Status != wireSuccess {
		return domain.NewReviewError(domain.KindRejected, serverMessage(env), nil)
	}
	return nil
}

// Ping checks backend reachability. Any HTTP response counts;
// the backend exposes no dedicated health endpoint.
func (s *HTTPSource) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/anomalies", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.NewReviewError(domain.KindNetwork, "backend unreachable", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPSource) get(ctx context.Context, rawURL string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewReviewError(domain.KindNetwork, "failed to build request", err)
	}
	return s.do(req)
}

// do executes one request and decodes the uniform envelope, failing
// closed on anything that does not look like a backend response.
func (s *HTTPSource) do(req *http.Request) (*envelope, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.NewReviewError(domain.KindNetwork, "backend request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, domain.NewReviewError(domain.KindNetwork, "failed to read response", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.NewReviewError(domain.KindDecode, "response is not a backend envelope", err)
	}
	if env.Status == "" {
		return nil, domain.NewReviewError(domain.KindDecode, "response envelope has no status", nil)
	}
	return &env, nil
}

func decodeData(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return domain.NewReviewError(domain.KindDecode, "response envelope has no data", nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewReviewError(domain.KindDecode, "response data has unexpected shape", err)
	}
	return nil
}

func serverMessage(env *envelope) string {
	if env.Message != "" {
		return env.Message
	}
	return "backend reported " + env.Status
}

// validateDecision enforces the client-side audit preconditions.
func validateDecision(d domain.AuditDecision) error {
	if d.Nomen == "" {
		return domain.NewReviewError(domain.KindValidation, "nomen is required", nil)
	}
	if strings.TrimSpace(d.Remark) == "" {
		return domain.NewReviewError(domain.KindValidation, "audit remark is required", nil)
	}
	return nil
}
