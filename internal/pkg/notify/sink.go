package notify

import (
	"context"
	"fmt"
	"time"

	httpclient "github.com/jagawarga/jagawarga/internal/pkg/http"
	"github.com/jagawarga/jagawarga/internal/pkg/logger"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
)

// Sink schedules a local notification. Fire-and-forget at the call sites:
// a scheduling failure is logged, never fatal.
type Sink interface {
	Schedule(ctx context.Context, n models.Notification) error
}

// NewSinkFromConfig builds the configured sink. Unknown modes fall back to
// the log sink so alerts are never silently dropped.
func NewSinkFromConfig(cfg models.NotifyConfig) Sink {
	switch cfg.Mode {
	case "webhook":
		if cfg.WebhookURL == "" {
			logger.Warn("notify.webhook_url not set, falling back to log sink")
			return &LogSink{}
		}
		return NewWebhookSink(cfg.WebhookURL, cfg.Timeout)
	case "log", "":
		return &LogSink{}
	default:
		logger.Warn("Unknown notify mode, falling back to log sink",
			logger.String("mode", cfg.Mode))
		return &LogSink{}
	}
}

// LogSink writes the notification to the structured log.
type LogSink struct{}

// Schedule logs the notification.
func (s *LogSink) Schedule(ctx context.Context, n models.Notification) error {
	logger.Info("Local notification",
		logger.String("title", n.Title),
		logger.String("body", n.Body))
	return nil
}

// WebhookSink posts the notification to an external delivery endpoint, e.g.
// a desktop notifier or chat hook.
type WebhookSink struct {
	client *httpclient.Client
}

// NewWebhookSink creates a webhook-backed sink.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		client: httpclient.NewClient(httpclient.Config{BaseURL: url, Timeout: timeout}),
	}
}

// Schedule posts the notification as JSON. Any non-2xx status is an error.
func (s *WebhookSink) Schedule(ctx context.Context, n models.Notification) error {
	resp, err := s.client.Post(ctx, "", n)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer httpclient.Discard(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httpclient.HTTPError{StatusCode: resp.StatusCode, Message: "notification webhook rejected"}
	}
	return nil
}
