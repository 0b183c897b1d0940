// Package notify delivers run outcome notifications. The engine emits one
// event per finished run; sinks include the structured log and an outbound
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"conveyor/internal/circuitbreaker"
	"conveyor/internal/common/logging"
)

// Event describes a finished pipeline run.
type Event struct {
	RunID    string        `json:"runId"`
	Pipeline string        `json:"pipeline"`
	Status   string        `json:"status"`
	ExitCode int           `json:"exitCode"`
	TimedOut bool          `json:"timedOut"`
	Duration time.Duration `json:"durationMs"`
	Message  string        `json:"message,omitempty"`
}

// Notifier receives run outcome events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes run outcomes to the structured log.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	fields := []logging.Field{
		logging.String("run_id", event.RunID),
		logging.String("pipeline", event.Pipeline),
		logging.String("status", event.Status),
		logging.Int("exit_code", event.ExitCode),
		logging.Duration("duration", event.Duration),
	}
	if event.TimedOut {
		fields = append(fields, logging.Bool("timed_out", true))
	}

	if event.ExitCode == 0 {
		n.logger.Info("run finished", fields...)
	} else {
		n.logger.Warn("run finished", fields...)
	}
	return nil
}

// WebhookNotifier POSTs run outcomes as JSON to a configured URL. A
// circuit breaker guards the endpoint so a dead receiver cannot slow down
// run completion.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: circuitbreaker.New("notify-webhook", circuitbreaker.DefaultConfig()),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	return n.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build notification request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("send notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// Multi fans an event out to several notifiers. The first error is
// returned after all notifiers have been attempted.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
