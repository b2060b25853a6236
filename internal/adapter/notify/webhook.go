// Package notify delivers completed batches to caller-supplied callback URLs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
)

// WebhookNotifier POSTs batch completion payloads to a callback URL with
// exponential-backoff retries. Implements domain.Notifier.
type WebhookNotifier struct {
	client          *http.Client
	maxElapsedTime  time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Option configures a WebhookNotifier.
type Option func(*WebhookNotifier)

// WithBackoff overrides the retry window.
func WithBackoff(maxElapsed, initial, maxInterval time.Duration) Option {
	return func(n *WebhookNotifier) {
		n.maxElapsedTime = maxElapsed
		n.initialInterval = initial
		n.maxInterval = maxInterval
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *WebhookNotifier) { n.client.Timeout = d }
}

// NewWebhookNotifier constructs a notifier with traced HTTP transport.
func NewWebhookNotifier(opts ...Option) *WebhookNotifier {
	n := &WebhookNotifier{
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxElapsedTime:  60 * time.Second,
		initialInterval: 1 * time.Second,
		maxInterval:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type callbackPayload struct {
	BatchID string         `json:"batch_id"`
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Result  []*string      `json:"result"`
	SentAt  time.Time      `json:"sent_at"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Deliver POSTs the batch outcome to callbackURL, retrying on network
// errors and 5xx responses until the backoff window is exhausted.
func (n *WebhookNotifier) Deliver(ctx domain.Context, callbackURL string, b domain.Batch) error {
	body, err := json.Marshal(callbackPayload{
		BatchID: b.ID,
		Status:  string(b.Status),
		Error:   b.Error,
		Result:  b.Result,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("op=notify.deliver: marshal: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.initialInterval
	bo.MaxInterval = n.maxInterval
	bo.MaxElapsedTime = n.maxElapsedTime

	attempt := 0
	operation := func() error {
		attempt++
		if err := n.post(ctx, callbackURL, body); err != nil {
			slog.Warn("callback delivery attempt failed",
				slog.String("batch_id", b.ID),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		observability.CallbackDeliveriesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("op=notify.deliver: %w", err)
	}

	observability.CallbackDeliveriesTotal.WithLabelValues("ok").Inc()
	slog.Info("callback delivered", slog.String("batch_id", b.ID), slog.Int("attempts", attempt))
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The receiver rejected the payload; retrying will not help.
		return backoff.Permanent(fmt.Errorf("callback rejected: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("callback failed: status %d", resp.StatusCode)
	}
}
