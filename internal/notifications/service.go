package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"seedkeeper/internal/config"
)

const userAgent = "Seedkeeper-Go/0.1.0"

// Service defines the notification surface exposed to the control loops.
type Service interface {
	NotifyEmergencyActivated(ctx context.Context, ratio, floor float64) error
	NotifyEmergencyDeactivated(ctx context.Context, ratio, recovery float64) error
	NotifyVIPDecision(ctx context.Context, decision, detail string) error
	NotifyIntegrityFailure(ctx context.Context, title string, errors []string) error
	NotifyReplacementQueued(ctx context.Context, title string, oldScore, newScore float64) error
	NotifyAcquisitionSettled(ctx context.Context, title string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
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

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyEmergencyActivated(ctx context.Context, ratio, floor float64) error {
	data := payload{
		title:    "Seedkeeper - Ratio Emergency",
		message:  fmt.Sprintf("Ratio %.3f dropped below floor %.2f. Paid downloads blocked, allocation pushed to seeding.", ratio, floor),
		tags:     []string{"seedkeeper", "ratio", "emergency"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEmergencyDeactivated(ctx context.Context, ratio, recovery float64) error {
	data := payload{
		title:   "Seedkeeper - Ratio Recovered",
		message: fmt.Sprintf("Ratio %.3f reached recovery threshold %.2f. Blocks cleared, normal allocation restored.", ratio, recovery),
		tags:    []string{"seedkeeper", "ratio", "recovered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVIPDecision(ctx context.Context, decision, detail string) error {
	decision = strings.TrimSpace(decision)
	message := fmt.Sprintf("VIP planner decision: %s", decision)
	if detail = strings.TrimSpace(detail); detail != "" {
		message = fmt.Sprintf("%s\n%s", message, detail)
	}
	data := payload{
		title:   "Seedkeeper - VIP Planner",
		message: message,
		tags:    []string{"seedkeeper", "vip", "decision"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIntegrityFailure(ctx context.Context, title string, errors []string) error {
	title = strings.TrimSpace(title)
	var builder strings.Builder
	fmt.Fprintf(&builder, "Verification failed: %s", title)
	for _, problem := range errors {
		builder.WriteString("\n- ")
		builder.WriteString(problem)
	}
	data := payload{
		title:    "Seedkeeper - Integrity Failure",
		message:  builder.String(),
		tags:     []string{"seedkeeper", "integrity", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReplacementQueued(ctx context.Context, title string, oldScore, newScore float64) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Seedkeeper - Replacement Queued",
		message: fmt.Sprintf("Superior release queued for %s (%.1f -> %.1f)", title, oldScore, newScore),
		tags:    []string{"seedkeeper", "quality", "replacement"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAcquisitionSettled(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	data := payload{
		title:   "Seedkeeper - Settled",
		message: fmt.Sprintf("Verified and settled: %s", title),
		tags:    []string{"seedkeeper", "lifecycle", "settled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Seedkeeper - Error",
		message:  builder.String(),
		tags:     []string{"seedkeeper", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Seedkeeper - Test",
		message:  "Notification system test",
		tags:     []string{"seedkeeper", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyEmergencyActivated(context.Context, float64, float64) error   { return nil }
func (noopService) NotifyEmergencyDeactivated(context.Context, float64, float64) error { return nil }
func (noopService) NotifyVIPDecision(context.Context, string, string) error            { return nil }
func (noopService) NotifyIntegrityFailure(context.Context, string, []string) error     { return nil }
func (noopService) NotifyReplacementQueued(context.Context, string, float64, float64) error {
	return nil
}
func (noopService) NotifyAcquisitionSettled(context.Context, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error       { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
