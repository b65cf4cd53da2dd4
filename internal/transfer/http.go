package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"seedkeeper/internal/config"
	"seedkeeper/internal/services"
)

const (
	defaultRequestTimeout = 15 * time.Second
	component             = "transfer"
)

// HTTPClient wraps the transfer client's WebAPI behind the Client interface.
// Authentication is cookie based; the client logs in lazily and re-logs-in
// once when a request comes back 403. Safe for concurrent use: the lifecycle
// poll and the ratio monitor's allocation lever share one instance.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu       sync.Mutex
	loggedIn bool
}

// Option customizes the HTTP client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client. The replacement must
// carry a cookie jar or the session cookie will be lost between requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.http = client
		}
	}
}

// NewHTTPClient constructs a WebAPI client from configuration.
func NewHTTPClient(cfg config.Transfer, opts ...Option) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "base url is required", nil)
	}
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("new cookie jar: %w", err)
	}
	client := &HTTPClient{
		baseURL:  baseURL,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout, Jar: jar},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Login authenticates against the WebAPI and stores the session cookie.
func (c *HTTPClient) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

// ensureLoggedIn logs in once on first use; later callers see the cookie.
func (c *HTTPClient) ensureLoggedIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}
	return c.login(ctx)
}

// expireSession drops the session and logs in again. Concurrent callers that
// all saw a 403 serialize here, so the second one logs in against an already
// fresh session, which the WebAPI treats as a no-op.
func (c *HTTPClient) expireSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = false
	return c.login(ctx)
}

func (c *HTTPClient) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "login", "request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrTransient, component, "login", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if !strings.EqualFold(strings.TrimSpace(string(body)), "Ok.") {
		return services.Wrap(services.ErrConfiguration, component, "login", "credentials rejected", nil)
	}
	c.loggedIn = true
	return nil
}

type listedItem struct {
	Hash       string  `json:"hash"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	Progress   float64 `json:"progress"`
	Size       int64   `json:"size"`
	Completed  int64   `json:"completed"`
	Uploaded   int64   `json:"uploaded"`
	SavePath   string  `json:"save_path"`
	AmountLeft int64   `json:"amount_left"`
}

// ListItems returns every transfer the client manages with parsed states.
func (c *HTTPClient) ListItems(ctx context.Context) ([]Item, error) {
	body, err := c.get(ctx, "/api/v2/torrents/info", nil)
	if err != nil {
		return nil, err
	}
	var listed []listedItem
	if err := json.Unmarshal(body, &listed); err != nil {
		return nil, services.Wrap(services.ErrTransient, component, "list items", "decode response", err)
	}
	items := make([]Item, 0, len(listed))
	for _, raw := range listed {
		items = append(items, Item{
			Handle:     raw.Hash,
			Name:       raw.Name,
			State:      ParseState(raw.State),
			RawState:   raw.State,
			Progress:   raw.Progress,
			SizeBytes:  raw.Size,
			DoneBytes:  raw.Completed,
			UploadedTo: raw.Uploaded,
			SavePath:   raw.SavePath,
		})
	}
	return items, nil
}

// Enqueue submits a new transfer by source URL.
func (c *HTTPClient) Enqueue(ctx context.Context, req EnqueueRequest) error {
	if strings.TrimSpace(req.SourceURL) == "" {
		return services.Wrap(services.ErrValidation, component, "enqueue", "source url is required", nil)
	}
	form := url.Values{}
	form.Set("urls", req.SourceURL)
	if req.SavePath != "" {
		form.Set("savepath", req.SavePath)
	}
	if req.Paused {
		form.Set("paused", "true")
	}
	return c.post(ctx, "/api/v2/torrents/add", form)
}

// Pause halts the given transfers.
func (c *HTTPClient) Pause(ctx context.Context, handles ...string) error {
	return c.bulkAction(ctx, "/api/v2/torrents/pause", handles)
}

// Resume restarts paused transfers.
func (c *HTTPClient) Resume(ctx context.Context, handles ...string) error {
	return c.bulkAction(ctx, "/api/v2/torrents/resume", handles)
}

// ForceResume restarts transfers ignoring queue limits.
func (c *HTTPClient) ForceResume(ctx context.Context, handles ...string) error {
	if len(handles) == 0 {
		return nil
	}
	form := url.Values{}
	form.Set("hashes", strings.Join(handles, "|"))
	form.Set("value", "true")
	return c.post(ctx, "/api/v2/torrents/setForceStart", form)
}

// SetSeedSlotLimit caps concurrent uploads via the client preferences API.
func (c *HTTPClient) SetSeedSlotLimit(ctx context.Context, limit int) error {
	if limit < 0 {
		return services.Wrap(services.ErrValidation, component, "set seed slots", "limit must be non-negative", nil)
	}
	prefs, err := json.Marshal(map[string]any{
		"max_active_uploads":  limit,
		"queueing_enabled":    true,
		"max_active_torrents": limit + limit/2,
	})
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	form := url.Values{}
	form.Set("json", string(prefs))
	return c.post(ctx, "/api/v2/app/setPreferences", form)
}

func (c *HTTPClient) bulkAction(ctx context.Context, path string, handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	form := url.Values{}
	form.Set("hashes", strings.Join(handles, "|"))
	return c.post(ctx, path, form)
}

func (c *HTTPClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req)
}

func (c *HTTPClient) post(ctx context.Context, path string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req)
	return err
}

// do executes a request, logging in first if needed and once more if the
// session has expired.
func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	if err := c.ensureLoggedIn(req.Context()); err != nil {
		return nil, err
	}
	body, status, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden {
		if err := c.expireSession(req.Context()); err != nil {
			return nil, err
		}
		retried := req.Clone(req.Context())
		if req.GetBody != nil {
			retried.Body, err = req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
		}
		body, status, err = c.send(retried)
		if err != nil {
			return nil, err
		}
	}
	if status >= http.StatusMultipleChoices {
		marker := services.ErrTransient
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			marker = services.ErrValidation
		}
		return nil, services.Wrap(marker, component, req.URL.Path, "http "+strconv.Itoa(status), nil)
	}
	return body, nil
}

func (c *HTTPClient) send(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrTransient, component, req.URL.Path, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrTransient, component, req.URL.Path, "read body", err)
	}
	return body, resp.StatusCode, nil
}
