package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kaunda/regcycle/internal/config"
	"github.com/kaunda/regcycle/model"
)

// LogNotifier writes notifications to the log. Used when no webhook is
// configured and in development.
type LogNotifier struct {
	logger *zap.Logger
}

var _ model.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, recipientID, subject, body string) error {
	n.logger.Info("escalation notification",
		zap.String("recipient_id", recipientID),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

// WebhookNotifier POSTs notifications to a configured HTTP endpoint, one
// request per recipient. Deliveries run behind a breaker: once the endpoint
// fails repeatedly, further attempts fail fast until a cooldown elapses and
// a probe succeeds.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *deliveryBreaker
}

var _ model.Notifier = (*WebhookNotifier)(nil)

// NewWebhookNotifier creates an HTTP notifier from webhook config.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		client:  &http.Client{Timeout: timeout},
		breaker: newDeliveryBreaker(5, 2, 30*time.Second),
	}
}

type webhookPayload struct {
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, recipientID, subject, body string) error {
	if err := n.breaker.allow(); err != nil {
		return err
	}

	payload, err := json.Marshal(webhookPayload{
		RecipientID: recipientID,
		Subject:     subject,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.breaker.recordFailure()
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.breaker.recordFailure()
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	n.breaker.recordSuccess()
	return nil
}
