package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"autoposter/internal/config"
)

const userAgent = "autoposter/1.0"

// Service is the alert surface used by the dispatcher and the watcher.
type Service interface {
	NotifyJobFailed(ctx context.Context, jobID int64, client, path, reason string) error
	NotifyUnclassified(ctx context.Context, path, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed Service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: cfg.NotificationTimeout()},
		onFailure:      cfg.Notifications.OnFailure,
		onUnclassified: cfg.Notifications.OnUnclassified,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	onFailure      bool
	onUnclassified bool
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID int64, client, path, reason string) error {
	if !n.onFailure {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return n.send(ctx, message{
		title:    fmt.Sprintf("autoposter - %s post failed", strings.TrimSpace(client)),
		body:     fmt.Sprintf("Job #%d (%s) will not be retried: %s", jobID, filepath.Base(path), reason),
		tags:     []string{"autoposter", "failed", strings.TrimSpace(client)},
		priority: "high",
	})
}

func (n *ntfyService) NotifyUnclassified(ctx context.Context, path, reason string) error {
	if !n.onUnclassified {
		return nil
	}
	return n.send(ctx, message{
		title: "autoposter - file not queued",
		body:  fmt.Sprintf("%s\n%s", path, strings.TrimSpace(reason)),
		tags:  []string{"autoposter", "unclassified"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, message{
		title:    "autoposter - test",
		body:     "Notification test from autoposter",
		tags:     []string{"autoposter", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, m message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(m.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if m.title != "" {
		req.Header.Set("Title", m.title)
	}
	var tags []string
	for _, tag := range m.tags {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if m.priority != "" && m.priority != "default" {
		req.Header.Set("Priority", m.priority)
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

func (noopService) NotifyJobFailed(context.Context, int64, string, string, string) error { return nil }
func (noopService) NotifyUnclassified(context.Context, string, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
