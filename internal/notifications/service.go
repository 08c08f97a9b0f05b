package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"atelier/internal/config"
)

const userAgent = "Atelier-Go/0.1.0"

// Event identifies a notification kind. The ntfy backend maps each event to
// a title, tag set, and priority.
type Event string

const (
	EventRunCompleted        Event = "run_completed"
	EventRunFailed           Event = "run_failed"
	EventCredentialsExpiring Event = "credentials_expiring"
	EventTest                Event = "test"
)

// Payload carries event-specific fields referenced by the message templates.
type Payload map[string]string

// Service is the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventRunCompleted:
		body := fmt.Sprintf("Run complete for %s: %s scraped, %s generated, %s scheduled",
			get("account"), orZero(get("scraped")), orZero(get("generated")), orZero(get("scheduled")))
		return message{
			title: "Atelier - Run Complete",
			body:  body,
			tags:  []string{"atelier", "run", "completed"},
		}, true
	case EventRunFailed:
		body := fmt.Sprintf("Run failed for %s at %s: %s",
			get("account"), orUnknown(get("step")), orUnknown(get("error")))
		return message{
			title:    "Atelier - Run Failed",
			body:     body,
			tags:     []string{"atelier", "run", "failed"},
			priority: "high",
		}, true
	case EventCredentialsExpiring:
		body := fmt.Sprintf("Scraper credentials rejected for %s. Re-authenticate before the next run.",
			orUnknown(get("account")))
		return message{
			title:    "Atelier - Credentials",
			body:     body,
			tags:     []string{"atelier", "credentials", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Atelier - Test",
			body:     "Notification system test",
			tags:     []string{"atelier", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func orZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
