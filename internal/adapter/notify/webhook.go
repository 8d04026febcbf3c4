package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"

	"github.com/rs/zerolog"
)

// defaultRetryIntervals are the waits before the 2nd, 3rd and 4th attempt.
var defaultRetryIntervals = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookSink POSTs signed alert events to a single URL.
type WebhookSink struct {
	url            string
	secret         string
	client         HTTPClient
	attemptTimeout time.Duration
	deliveries     ports.DeliveryRepository
	intervals      []time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

// NewWebhookSink creates a webhook sink. attemptTimeout bounds each POST
// (zero leaves it to the client); deliveries may be nil.
func NewWebhookSink(url, secret string, client HTTPClient, attemptTimeout time.Duration, deliveries ports.DeliveryRepository, log zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		url:            url,
		secret:         secret,
		client:         client,
		attemptTimeout: attemptTimeout,
		deliveries:     deliveries,
		intervals:      defaultRetryIntervals,
		now:            time.Now,
		log:            log,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// DeliveryBudget is the longest a full Send can take: every retry wait
// plus every attempt at its timeout. Zero when attempts are unbounded.
func (s *WebhookSink) DeliveryBudget() time.Duration {
	if s.attemptTimeout <= 0 {
		return 0
	}
	budget := time.Duration(len(s.intervals)+1) * s.attemptTimeout
	for _, d := range s.intervals {
		budget += d
	}
	return budget
}

// Send delivers the alert, retrying transport errors, 5xx, 408 and 429.
// Every attempt is recorded.
func (s *WebhookSink) Send(ctx context.Context, alert *domain.Alert) error {
	body, err := encodeAlert(alert, s.now())
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= len(s.intervals)+1; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook delivery canceled after %d attempts: %w", attempt-1, lastErr)
			case <-time.After(s.intervals[attempt-2]):
			}
		}

		status, err := s.post(ctx, body)
		s.record(ctx, alert, attempt, status, err)
		if err == nil {
			s.log.Info().
				Str("alert_id", alert.ID.String()).
				Int("attempt", attempt).
				Int("status", status).
				Msg("webhook: delivered")
			return nil
		}
		lastErr = err
		s.log.Warn().Err(err).
			Str("alert_id", alert.ID.String()).
			Int("attempt", attempt).
			Msg("webhook: delivery failed")

		if status != 0 && !retryableStatus(status) {
			break
		}
	}
	return fmt.Errorf("webhook delivery failed: %w", lastErr)
}

func (s *WebhookSink) post(ctx context.Context, body []byte) (int, error) {
	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	ts := s.now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	if s.secret != "" {
		req.Header.Set("X-Signature", Sign(s.secret, ts, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *WebhookSink) record(ctx context.Context, alert *domain.Alert, attempt, status int, sendErr error) {
	if s.deliveries == nil {
		return
	}
	d := &domain.NotificationDelivery{
		AlertID:   alert.ID,
		Sink:      s.Name(),
		Target:    s.url,
		Attempt:   attempt,
		Status:    domain.DeliveryDelivered,
		CreatedAt: s.now().UTC(),
	}
	if status != 0 {
		d.HTTPStatus = &status
	}
	if sendErr != nil {
		d.Status = domain.DeliveryFailed
		msg := sendErr.Error()
		d.LastError = &msg
	}
	if err := s.deliveries.Record(context.WithoutCancel(ctx), d); err != nil {
		s.log.Warn().Err(err).Str("alert_id", alert.ID.String()).Msg("webhook: failed to record delivery")
	}
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}
