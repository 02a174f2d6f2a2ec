package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/XiaoConstantine/evoretrieve/pkg/logging"
)

// Event names carried in webhook payloads.
type Event string

const (
	EventStart       Event = "start"
	EventComplete    Event = "complete"
	EventImprovement Event = "improvement"
	EventRegression  Event = "regression"
	EventError       Event = "error"
)

// WebhookConfig maps events to the URLs notified for them.
type WebhookConfig struct {
	OnStart       []string `yaml:"on_start"`
	OnComplete    []string `yaml:"on_complete"`
	OnImprovement []string `yaml:"on_improvement"`
	OnRegression  []string `yaml:"on_regression"`
	OnError       []string `yaml:"on_error"`

	// Timeout per delivery attempt (default 10s).
	Timeout time.Duration `yaml:"timeout"`
}

func (c WebhookConfig) urlsFor(event Event) []string {
	switch event {
	case EventStart:
		return c.OnStart
	case EventComplete:
		return c.OnComplete
	case EventImprovement:
		return c.OnImprovement
	case EventRegression:
		return c.OnRegression
	case EventError:
		return c.OnError
	default:
		return nil
	}
}

// Notifier delivers best-effort webhook notifications. Delivery failures
// are logged, never retried, and never block the evolution or deployment
// decision path (callers invoke Notify from a goroutine).
type Notifier struct {
	config WebhookConfig
	client *http.Client
}

// NewNotifier creates a webhook notifier.
func NewNotifier(config WebhookConfig) *Notifier {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify POSTs {event, timestamp, ...payload} to every URL configured for
// the event.
func (n *Notifier) Notify(ctx context.Context, event Event, payload map[string]interface{}) {
	urls := n.config.urlsFor(event)
	if len(urls) == 0 {
		return
	}
	logger := logging.GetLogger()

	body := map[string]interface{}{
		"event":     string(event),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		logger.Warn(ctx, "failed to encode webhook payload: %v", err)
		return
	}

	for _, url := range urls {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			logger.Warn(ctx, "failed to build webhook request for %s: %v", url, err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			logger.Warn(ctx, "webhook delivery to %s failed: %v", url, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			logger.Warn(ctx, "webhook %s returned status %d", url, resp.StatusCode)
		}
	}
}
