package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"syndicate/internal/config"
)

const (
	userAgent = "syndicate"
	// repeatWindow suppresses identical error alerts, e.g. the same FTP
	// failure reported by every workflow cycle.
	repeatWindow = 15 * time.Minute
)

// Service is the notification surface used by the daemon and workflow.
type Service interface {
	NotifyTransmission(ctx context.Context, queue string, sent, failed int) error
	NotifyFeedRejected(ctx context.Context, file, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy-backed Service, or a no-op when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:     strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:       &http.Client{Timeout: timeout},
		transmission: cfg.Notifications.Transmission,
		errors:       cfg.Notifications.Errors,
		alerts:       rate.NewLimiter(rate.Every(time.Minute), 5),
		recent:       make(map[string]time.Time),
		now:          time.Now,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	transmission bool
	errors       bool

	// alerts caps error-class pushes; recent holds the last send time per
	// error body.
	alerts *rate.Limiter
	mu     sync.Mutex
	recent map[string]time.Time
	now    func() time.Time
}

func (n *ntfyService) NotifyTransmission(ctx context.Context, queue string, sent, failed int) error {
	if !n.transmission {
		return nil
	}
	queue = strings.TrimSpace(queue)
	if failed > 0 {
		return n.post(ctx, message{
			title:    "Syndicate - Transmission Failed",
			body:     fmt.Sprintf("%s: %d sent, %d failed", queue, sent, failed),
			tags:     []string{"syndicate", "transmit", "failed"},
			priority: "high",
		})
	}
	return n.post(ctx, message{
		title: "Syndicate - Transmitted",
		body:  fmt.Sprintf("Sent %d items to %s", sent, queue),
		tags:  []string{"syndicate", "transmit", "completed"},
	})
}

func (n *ntfyService) NotifyFeedRejected(ctx context.Context, file, reason string) error {
	if !n.errors {
		return nil
	}
	lines := []string{"Feed rejected: " + strings.TrimSpace(file)}
	if reason = strings.TrimSpace(reason); reason != "" {
		lines = append(lines, reason)
	}
	return n.alert(ctx, message{
		title: "Syndicate - Feed Rejected",
		body:  strings.Join(lines, "\n"),
		tags:  []string{"syndicate", "ingest", "rejected"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, during string) error {
	if !n.errors {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	body := "Error: " + detail
	if during = strings.TrimSpace(during); during != "" {
		body = fmt.Sprintf("Error during %s: %s", during, detail)
	}
	return n.alert(ctx, message{
		title:    "Syndicate - Error",
		body:     body,
		tags:     []string{"syndicate", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.post(ctx, message{
		title:    "Syndicate - Test",
		body:     "Notification system test",
		tags:     []string{"syndicate", "test"},
		priority: "low",
	})
}

// alert posts msg unless the same body went out within repeatWindow or the
// alert rate is exhausted. Suppressed alerts are not errors.
func (n *ntfyService) alert(ctx context.Context, msg message) error {
	n.mu.Lock()
	now := n.now()
	if last, ok := n.recent[msg.body]; ok && now.Sub(last) < repeatWindow {
		n.mu.Unlock()
		return nil
	}
	if !n.alerts.AllowN(now, 1) {
		n.mu.Unlock()
		return nil
	}
	for body, at := range n.recent {
		if now.Sub(at) >= repeatWindow {
			delete(n.recent, body)
		}
	}
	n.recent[msg.body] = now
	n.mu.Unlock()
	return n.post(ctx, msg)
}

func (n *ntfyService) post(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	headers := map[string]string{
		"User-Agent":   userAgent,
		"Content-Type": "text/plain; charset=utf-8",
		"Title":        msg.title,
		"Tags":         strings.Join(msg.tags, ","),
		"Priority":     msg.priority,
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTransmission(context.Context, string, int, int) error { return nil }
func (noopService) NotifyFeedRejected(context.Context, string, string) error   { return nil }
func (noopService) NotifyError(context.Context, error, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
