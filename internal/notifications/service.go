package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"crowdwatch/internal/aggregate"
	"crowdwatch/internal/config"
)

const userAgent = "crowdwatch/0.1.0"

// Crowd describes a completed run for alerting.
type Crowd struct {
	RunID          string
	Source         string
	PeopleEstimate int
	Peak           int
	Density        aggregate.Density
}

// Service defines the notification surface used by the CLI and server.
type Service interface {
	// NotifyCrowd sends an alert when crowd.Density reaches the configured
	// threshold. It reports whether a notification was sent.
	NotifyCrowd(ctx context.Context, crowd Crowd) (bool, error)
	NotifyError(ctx context.Context, err error, source string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	threshold, err := aggregate.ParseDensity(cfg.MinDensity)
	if err != nil {
		threshold = aggregate.DensityHigh
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		threshold: threshold,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	threshold aggregate.Density
}

func (n *ntfyService) NotifyCrowd(ctx context.Context, crowd Crowd) (bool, error) {
	if crowd.Density.Rank() < n.threshold.Rank() {
		return false, nil
	}
	source := strings.TrimSpace(crowd.Source)
	if source == "" {
		source = "unnamed clip"
	}
	message := fmt.Sprintf("%s crowd in %s: about %d people (peak %d in one frame)",
		crowd.Density, source, crowd.PeopleEstimate, crowd.Peak)
	if crowd.RunID != "" {
		message += "\nRun: " + crowd.RunID
	}
	priority := "default"
	if crowd.Density == aggregate.DensityHigh {
		priority = "high"
	}
	data := payload{
		title:    "crowdwatch - " + crowd.Density.String() + " Density",
		message:  message,
		tags:     []string{"crowdwatch", "density", strings.ToLower(crowd.Density.String())},
		priority: priority,
	}
	if err := n.send(ctx, data); err != nil {
		return false, err
	}
	return true, nil
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, source string) error {
	var builder strings.Builder
	builder.WriteString("Analysis failed")
	if source = strings.TrimSpace(source); source != "" {
		builder.WriteString(" for ")
		builder.WriteString(source)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "crowdwatch - Error",
		message:  builder.String(),
		tags:     []string{"crowdwatch", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "crowdwatch - Test",
		message:  "Notification system test",
		tags:     []string{"crowdwatch", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopService struct{}

func (noopService) NotifyCrowd(context.Context, Crowd) (bool, error) { return false, nil }
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
