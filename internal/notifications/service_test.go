package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"seedkeeper/internal/config"
	"seedkeeper/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyEmergencyActivated(context.Background(), 0.97, 1.00); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "emergency activated",
			notify: func(svc notifications.Service) error {
				return svc.NotifyEmergencyActivated(context.Background(), 0.973, 1.00)
			},
			expectTitle:    "Seedkeeper - Ratio Emergency",
			expectMessage:  "Ratio 0.973 dropped below floor 1.00. Paid downloads blocked, allocation pushed to seeding.",
			expectTags:     "seedkeeper,ratio,emergency",
			expectPriority: "high",
		},
		{
			name: "emergency deactivated",
			notify: func(svc notifications.Service) error {
				return svc.NotifyEmergencyDeactivated(context.Background(), 1.062, 1.05)
			},
			expectTitle:   "Seedkeeper - Ratio Recovered",
			expectMessage: "Ratio 1.062 reached recovery threshold 1.05. Blocks cleared, normal allocation restored.",
			expectTags:    "seedkeeper,ratio,recovered",
		},
		{
			name: "vip decision",
			notify: func(svc notifications.Service) error {
				return svc.NotifyVIPDecision(context.Background(), "RENEW", "spent 5000 points")
			},
			expectTitle:   "Seedkeeper - VIP Planner",
			expectMessage: "VIP planner decision: RENEW\nspent 5000 points",
			expectTags:    "seedkeeper,vip,decision",
		},
		{
			name: "integrity failure",
			notify: func(svc notifications.Service) error {
				return svc.NotifyIntegrityFailure(context.Background(), "The Stand", []string{"duration off by 8%"})
			},
			expectTitle:    "Seedkeeper - Integrity Failure",
			expectMessage:  "Verification failed: The Stand\n- duration off by 8%",
			expectTags:     "seedkeeper,integrity,failed",
			expectPriority: "high",
		},
		{
			name: "replacement queued",
			notify: func(svc notifications.Service) error {
				return svc.NotifyReplacementQueued(context.Background(), "The Stand", 62, 70)
			},
			expectTitle:   "Seedkeeper - Replacement Queued",
			expectMessage: "Superior release queued for The Stand (62.0 -> 70.0)",
			expectTags:    "seedkeeper,quality,replacement",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("tracker unreachable"), "ratio check")
			},
			expectTitle:    "Seedkeeper - Error",
			expectMessage:  "Error with ratio check: tracker unreachable",
			expectTags:     "seedkeeper,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from failing ntfy endpoint")
	}
}
