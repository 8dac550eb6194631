package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const (
	defaultWebhookTimeout = 10 * time.Second

	// maxErrorBodyBytes caps how much of a failure response is kept for the
	// error message.
	maxErrorBodyBytes = 4 << 10
)

// DeliveryError is returned when the webhook endpoint rejects a message.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("slack webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Webhook delivers messages to a single incoming-webhook URL. There is no
// retry: a failed POST surfaces as a DeliveryError and the caller decides.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhook validates the endpoint URL and returns a sender bound to it.
// Validation happens here so a missing or broken configuration fails at
// startup, before any AWS call is made.
func NewWebhook(webhookURL string, logger *zap.Logger) (*Webhook, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid slack webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("slack webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("slack webhook URL must include a host")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Webhook{
		url:        webhookURL,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
		logger:     logger,
	}, nil
}

// Send POSTs one message. Any non-2xx response is a *DeliveryError carrying
// the status code and response body.
func (w *Webhook) Send(ctx context.Context, msg *slack.WebhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer func() {
		// Drain and close body to reuse connections.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Debug("slack message delivered", zap.Int("status", resp.StatusCode))
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &DeliveryError{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
}
