package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"seedkeeper/internal/config"
	"seedkeeper/internal/retry"
	"seedkeeper/internal/services"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(config.Tracker{
		BaseURL:  server.URL,
		Username: "tester",
		Password: "secret",
	}, WithRetryPolicy(retry.Policy{
		MaxAttempts: 3,
		Sleep:       func(time.Duration) {},
	}))
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return client
}

func TestAuthenticateStoresToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"tok-123"}`))
	})
	mux.HandleFunc("/api/v1/account/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ratio":1.42,"bonus_points":8200,"seeding_count":17}`))
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	ratio, err := client.FetchRatio(ctx)
	if err != nil {
		t.Fatalf("FetchRatio: %v", err)
	}
	if ratio != 1.42 {
		t.Fatalf("ratio = %v", ratio)
	}
}

func TestFetchRatioRetriesServerErrors(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/account/stats", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ratio":0.97}`))
	})
	client := newTestClient(t, mux)

	ratio, err := client.FetchRatio(context.Background())
	if err != nil {
		t.Fatalf("FetchRatio: %v", err)
	}
	if ratio != 0.97 {
		t.Fatalf("ratio = %v", ratio)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestFetchRatioDoesNotRetryAuthFailures(t *testing.T) {
	var loginCalls, statsCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/v1/account/stats", func(w http.ResponseWriter, r *http.Request) {
		statsCalls++
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
	client := newTestClient(t, mux)

	_, err := client.FetchRatio(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsTransient(err) {
		t.Fatalf("auth failure must not be transient: %v", err)
	}
	if statsCalls != 1 || loginCalls != 1 {
		t.Fatalf("expected one stats attempt and one re-auth attempt, got %d/%d", statsCalls, loginCalls)
	}
}

func TestExpiredTokenReauthenticatesAndReplays(t *testing.T) {
	var logins int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		fmt.Fprintf(w, `{"token":"tok-%d"}`, logins)
	})
	var statsCalls int
	mux.HandleFunc("/api/v1/account/stats", func(w http.ResponseWriter, r *http.Request) {
		statsCalls++
		// Only the second token is honored: the first has "expired".
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ratio":1.31}`))
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	ratio, err := client.FetchRatio(ctx)
	if err != nil {
		t.Fatalf("FetchRatio after expiry: %v", err)
	}
	if ratio != 1.31 {
		t.Fatalf("ratio = %v", ratio)
	}
	if logins != 2 {
		t.Fatalf("expected startup login plus one re-auth, got %d", logins)
	}
	if statsCalls != 2 {
		t.Fatalf("expected the rejected request replayed once, got %d calls", statsCalls)
	}
}

func TestFetchPromotionalEventsDropsUnknownKinds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"kind":"freeleech","name":"Spring FL","starts_at":"2026-03-01T00:00:00Z","ends_at":"2026-03-08T00:00:00Z"},
			{"kind":"double_seed_karma","name":"Mystery","starts_at":"2026-03-01T00:00:00Z","ends_at":"2026-03-08T00:00:00Z"},
			{"kind":"bonus_points","name":"Points Week","starts_at":"2026-04-01T00:00:00Z","ends_at":"2026-04-08T00:00:00Z"}
		]`))
	})
	client := newTestClient(t, mux)

	events, err := client.FetchPromotionalEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchPromotionalEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected unknown kind dropped, got %d events", len(events))
	}
	if events[0].Kind != EventFreeleech || events[1].Kind != EventBonusPoints {
		t.Fatalf("unexpected kinds: %+v", events)
	}
}

func TestPromotionalEventActiveWindow(t *testing.T) {
	event := PromotionalEvent{
		StartsAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	}
	if event.Active(time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("event must not be active before its start")
	}
	if !event.Active(event.StartsAt) {
		t.Fatal("event is active at its start instant")
	}
	if event.Active(event.EndsAt) {
		t.Fatal("event is inactive at its end instant")
	}
}

func TestSubmitRenewalParsesReceipt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/vip/renew", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte(`{"points_spent":5000,"points_remaining":3200,"new_expiry":"2026-10-01T00:00:00Z"}`))
	})
	client := newTestClient(t, mux)

	receipt, err := client.SubmitRenewal(context.Background(), 5000)
	if err != nil {
		t.Fatalf("SubmitRenewal: %v", err)
	}
	if receipt.PointsSpent != 5000 || receipt.PointsRemaining != 3200 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.NewExpiry.IsZero() {
		t.Fatal("expected parsed expiry")
	}
}
