package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"seedkeeper/internal/config"
	"seedkeeper/internal/retry"
	"seedkeeper/internal/services"
)

const (
	defaultRequestTimeout = 20 * time.Second
	component             = "tracker"
	loginPath             = "/api/v1/auth/login"
)

// HTTPClient implements Client against the tracker's JSON API. Requests that
// fail transiently are retried with bounded backoff; authentication uses a
// bearer token obtained from the login endpoint. When a request comes back
// 401 the client re-authenticates once and replays it, so an expired token
// heals without surfacing to the loops.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	policy   retry.Policy

	mu    sync.Mutex
	token string
}

// Option customizes the HTTP client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryPolicy overrides the retry policy (useful for tests).
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *HTTPClient) {
		c.policy = policy
	}
}

// NewHTTPClient constructs a tracker client from configuration.
func NewHTTPClient(cfg config.Tracker, opts ...Option) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "new client", "base url is required", nil)
	}
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &HTTPClient{
		baseURL:  baseURL,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		policy:   retry.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Authenticate exchanges credentials for a bearer token.
func (c *HTTPClient) Authenticate(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}
	var result struct {
		Token string `json:"token"`
	}
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build login request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.decode(req, &result)
	})
	if err != nil {
		return err
	}
	if result.Token == "" {
		return services.Wrap(services.ErrConfiguration, component, "authenticate", "empty token in response", nil)
	}
	c.setToken(result.Token)
	return nil
}

func (c *HTTPClient) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *HTTPClient) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// FetchRatio returns the current global share ratio.
func (c *HTTPClient) FetchRatio(ctx context.Context) (float64, error) {
	stats, err := c.FetchAccountStats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Ratio, nil
}

type accountStatsPayload struct {
	Ratio        float64 `json:"ratio"`
	Uploaded     int64   `json:"uploaded_bytes"`
	Downloaded   int64   `json:"downloaded_bytes"`
	BonusPoints  int64   `json:"bonus_points"`
	VIPExpiresAt string  `json:"vip_expires_at"`
	SeedingCount int     `json:"seeding_count"`
}

// FetchAccountStats returns the account economy snapshot.
func (c *HTTPClient) FetchAccountStats(ctx context.Context) (AccountStats, error) {
	var payload accountStatsPayload
	if err := c.getJSON(ctx, "/api/v1/account/stats", nil, &payload); err != nil {
		return AccountStats{}, err
	}
	stats := AccountStats{
		Ratio:        payload.Ratio,
		Uploaded:     payload.Uploaded,
		Downloaded:   payload.Downloaded,
		BonusPoints:  payload.BonusPoints,
		SeedingCount: payload.SeedingCount,
	}
	if payload.VIPExpiresAt != "" {
		if expiry, err := time.Parse(time.RFC3339, payload.VIPExpiresAt); err == nil {
			stats.VIPExpiresAt = &expiry
		}
	}
	return stats, nil
}

type categoryRulePayload struct {
	Category       string  `json:"category"`
	CostsRatio     bool    `json:"costs_ratio"`
	BonusRate      float64 `json:"bonus_rate"`
	MinSeedMinutes int     `json:"min_seed_minutes"`
}

// FetchCategoryRules re-scrapes the per-category charging rules.
func (c *HTTPClient) FetchCategoryRules(ctx context.Context) ([]CategoryRule, error) {
	var payload []categoryRulePayload
	if err := c.getJSON(ctx, "/api/v1/rules/categories", nil, &payload); err != nil {
		return nil, err
	}
	rules := make([]CategoryRule, 0, len(payload))
	for _, raw := range payload {
		rules = append(rules, CategoryRule{
			Category:    raw.Category,
			CostsRatio:  raw.CostsRatio,
			BonusRate:   raw.BonusRate,
			MinSeedTime: time.Duration(raw.MinSeedMinutes) * time.Minute,
		})
	}
	return rules, nil
}

type promoEventPayload struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

// FetchPromotionalEvents returns current and announced promotions. Events
// with unknown kinds are dropped here so the advisor only sees the closed
// set.
func (c *HTTPClient) FetchPromotionalEvents(ctx context.Context) ([]PromotionalEvent, error) {
	var payload []promoEventPayload
	if err := c.getJSON(ctx, "/api/v1/events", nil, &payload); err != nil {
		return nil, err
	}
	events := make([]PromotionalEvent, 0, len(payload))
	for _, raw := range payload {
		kind := EventKind(strings.ToLower(strings.TrimSpace(raw.Kind)))
		switch kind {
		case EventFreeleech, EventBonusPoints, EventUploadMultiplier:
		default:
			continue
		}
		starts, err := time.Parse(time.RFC3339, raw.StartsAt)
		if err != nil {
			continue
		}
		ends, err := time.Parse(time.RFC3339, raw.EndsAt)
		if err != nil {
			continue
		}
		events = append(events, PromotionalEvent{
			Kind:     kind,
			Name:     raw.Name,
			StartsAt: starts,
			EndsAt:   ends,
		})
	}
	return events, nil
}

type releasePayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Narrator    string `json:"narrator"`
	Format      string `json:"format"`
	BitrateKbps int    `json:"bitrate_kbps"`
	Edition     string `json:"edition"`
	Source      string `json:"source"`
	Abridged    bool   `json:"abridged"`
	SizeBytes   int64  `json:"size_bytes"`
	Category    string `json:"category"`
	DownloadURL string `json:"download_url"`
	Seeders     int    `json:"seeders"`
}

// SearchReleases finds candidate releases for a work.
func (c *HTTPClient) SearchReleases(ctx context.Context, title, author string) ([]Release, error) {
	if strings.TrimSpace(title) == "" {
		return nil, services.Wrap(services.ErrValidation, component, "search", "title is required", nil)
	}
	query := url.Values{}
	query.Set("title", title)
	if author != "" {
		query.Set("author", author)
	}
	var payload []releasePayload
	if err := c.getJSON(ctx, "/api/v1/releases/search", query, &payload); err != nil {
		return nil, err
	}
	releases := make([]Release, 0, len(payload))
	for _, raw := range payload {
		releases = append(releases, Release{
			ID:          raw.ID,
			Title:       raw.Title,
			Author:      raw.Author,
			Narrator:    raw.Narrator,
			Format:      raw.Format,
			BitrateKbps: raw.BitrateKbps,
			Edition:     raw.Edition,
			Source:      raw.Source,
			Abridged:    raw.Abridged,
			SizeBytes:   raw.SizeBytes,
			Category:    raw.Category,
			SourceURL:   raw.DownloadURL,
			Seeders:     raw.Seeders,
		})
	}
	return releases, nil
}

// SubmitRenewal spends bonus points on a premium renewal. Renewal is a
// purchase, so it is never retried automatically.
func (c *HTTPClient) SubmitRenewal(ctx context.Context, costPoints int64) (RenewalReceipt, error) {
	payload, err := json.Marshal(map[string]int64{"points": costPoints})
	if err != nil {
		return RenewalReceipt{}, fmt.Errorf("encode renewal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/vip/renew", bytes.NewReader(payload))
	if err != nil {
		return RenewalReceipt{}, fmt.Errorf("build renewal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var result struct {
		PointsSpent     int64  `json:"points_spent"`
		PointsRemaining int64  `json:"points_remaining"`
		NewExpiry       string `json:"new_expiry"`
	}
	if err := c.decode(req, &result); err != nil {
		return RenewalReceipt{}, err
	}
	receipt := RenewalReceipt{
		PointsSpent:     result.PointsSpent,
		PointsRemaining: result.PointsRemaining,
	}
	if expiry, err := time.Parse(time.RFC3339, result.NewExpiry); err == nil {
		receipt.NewExpiry = expiry
	}
	return receipt, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, query url.Values, target any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.policy.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		return c.decode(req, target)
	})
}

// decode executes a request with the current bearer token. A 401 on any
// endpoint but login itself triggers one re-authentication and replay before
// the status is classified.
func (c *HTTPClient) decode(req *http.Request, target any) error {
	body, status, err := c.send(req)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && !strings.HasSuffix(req.URL.Path, loginPath) {
		if err := c.Authenticate(req.Context()); err != nil {
			return err
		}
		retried := req.Clone(req.Context())
		if req.GetBody != nil {
			retried.Body, err = req.GetBody()
			if err != nil {
				return fmt.Errorf("rewind request body: %w", err)
			}
		}
		body, status, err = c.send(retried)
		if err != nil {
			return err
		}
	}
	if status >= http.StatusMultipleChoices {
		marker := classifyStatus(status)
		return services.Wrap(marker, component, req.URL.Path, "http "+strconv.Itoa(status), nil)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.ErrTransient, component, req.URL.Path, "decode response", err)
	}
	return nil
}

func (c *HTTPClient) send(req *http.Request) ([]byte, int, error) {
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
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

func classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return services.ErrNotFound
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return services.ErrTimeout
	case status >= http.StatusInternalServerError:
		return services.ErrTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.ErrConfiguration
	default:
		return services.ErrValidation
	}
}
