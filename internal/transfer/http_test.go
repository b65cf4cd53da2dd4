package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"seedkeeper/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(config.Transfer{
		BaseURL:  server.URL,
		Username: "admin",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return client
}

func TestLoginRejectedCredentials(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Fails."))
	}))
	if err := client.Login(context.Background()); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestListItemsParsesStates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc"})
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("SID"); err != nil || cookie.Value != "abc" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Write([]byte(`[
			{"hash":"aa11","name":"Book One","state":"downloading","progress":0.5,"size":1000,"completed":500},
			{"hash":"bb22","name":"Book Two","state":"stalledUP","progress":1.0,"size":2000,"completed":2000}
		]`))
	})
	client := newTestClient(t, mux)

	items, err := client.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].State != StateDownloading {
		t.Errorf("item 0 state = %s", items[0].State)
	}
	if items[1].State != StateSeeding || !items[1].State.Completed() {
		t.Errorf("item 1 should be a completed seed, got %s", items[1].State)
	}
	if items[1].RawState != "stalledUP" {
		t.Errorf("raw state should be preserved, got %q", items[1].RawState)
	}
}

func TestExpiredSessionTriggersRelogin(t *testing.T) {
	var logins int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "fresh"})
		w.Write([]byte("Ok."))
	})
	var infoCalls int
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		infoCalls++
		if infoCalls == 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Write([]byte(`[]`))
	})
	client := newTestClient(t, mux)

	if _, err := client.ListItems(context.Background()); err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if logins != 2 {
		t.Fatalf("expected lazy login plus re-login, got %d logins", logins)
	}
}

func TestConcurrentRequestsShareOneSession(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc"})
		w.Write([]byte("Ok."))
	})
	var infoCalls atomic.Int32
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		// One mid-run expiry makes concurrent callers re-login together.
		if infoCalls.Add(1) == 3 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if cookie, err := r.Cookie("SID"); err != nil || cookie.Value != "abc" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.Write([]byte(`[]`))
	})
	client := newTestClient(t, mux)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				if _, err := client.ListItems(context.Background()); err != nil {
					t.Errorf("ListItems: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if logins.Load() < 1 {
		t.Fatal("expected at least the lazy login")
	}
}

func TestForceResumeSendsHandles(t *testing.T) {
	var form string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/setForceStart", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form = r.PostForm.Encode()
	})
	client := newTestClient(t, mux)

	if err := client.ForceResume(context.Background(), "aa11", "bb22"); err != nil {
		t.Fatalf("ForceResume: %v", err)
	}
	if !strings.Contains(form, "aa11%7Cbb22") {
		t.Fatalf("expected pipe-joined hashes, got %q", form)
	}

	// No handles means no request at all.
	form = ""
	if err := client.ForceResume(context.Background()); err != nil {
		t.Fatalf("empty ForceResume: %v", err)
	}
	if form != "" {
		t.Fatal("empty handle list must not hit the API")
	}
}
