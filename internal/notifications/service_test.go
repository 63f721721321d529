package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"syndicate/internal/config"
	"syndicate/internal/notifications"
)

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.calls++
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyTransmission(context.Background(), "wire", 3, 0); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("expected nil config to yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "transmission ok",
			send: func(s notifications.Service) error {
				return s.NotifyTransmission(context.Background(), "Daily Wire", 4, 0)
			},
			expectTitle:   "Syndicate - Transmitted",
			expectMessage: "Sent 4 items to Daily Wire",
			expectTags:    "syndicate,transmit,completed",
		},
		{
			name: "transmission failures",
			send: func(s notifications.Service) error {
				return s.NotifyTransmission(context.Background(), "Daily Wire", 1, 2)
			},
			expectTitle:    "Syndicate - Transmission Failed",
			expectMessage:  "Daily Wire: 1 sent, 2 failed",
			expectTags:     "syndicate,transmit,failed",
			expectPriority: "high",
		},
		{
			name: "feed rejected",
			send: func(s notifications.Service) error {
				return s.NotifyFeedRejected(context.Background(), "gazette.yaml", "unknown publication")
			},
			expectTitle:   "Syndicate - Feed Rejected",
			expectMessage: "Feed rejected: gazette.yaml\nunknown publication",
			expectTags:    "syndicate,ingest,rejected",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("ftp refused"), "transmit")
			},
			expectTitle:    "Syndicate - Error",
			expectMessage:  "Error during transmit: ftp refused",
			expectTags:     "syndicate,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCaptureServer(t, http.StatusOK)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Transmission = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.NotifyTransmission(ctx, "wire", 1, 0); err != nil {
		t.Fatalf("NotifyTransmission: %v", err)
	}
	if err := svc.NotifyError(ctx, errors.New("boom"), "refresh"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if err := svc.NotifyFeedRejected(ctx, "a.yaml", ""); err != nil {
		t.Fatalf("NotifyFeedRejected: %v", err)
	}
	if got.calls != 0 {
		t.Fatalf("expected suppressed notifications, got %d calls", got.calls)
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if got.calls != 1 {
		t.Fatalf("expected test notification to bypass toggles, got %d calls", got.calls)
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusForbidden)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	if err := notifications.NewService(&cfg).TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestNtfyServiceSuppressesRepeatedErrors(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = true
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	for range 3 {
		if err := svc.NotifyError(ctx, errors.New("ftp refused"), "transmit"); err != nil {
			t.Fatalf("NotifyError: %v", err)
		}
	}
	if got.calls != 1 {
		t.Fatalf("expected one push for repeated error, got %d", got.calls)
	}
	if err := svc.NotifyError(ctx, errors.New("redis down"), "events"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if got.calls != 2 {
		t.Fatalf("expected distinct error to be pushed, got %d calls", got.calls)
	}
}
