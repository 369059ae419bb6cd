// Package notify is the operator notification channel. Skip and
// failure decisions that need human attention are posted to a
// webhook; when no webhook is configured they are logged only.
// Notification failures are never fatal to the surrounding pass.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/strand-cloud/strand/pkg/log"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is the payload sent to operators.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Severity  Severity  `json:"severity"`
	Scope     string    `json:"scope,omitempty"`
	Workflow  string    `json:"workflow,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, scope, workflow, message string)
}

// New returns a webhook notifier, or a log-only notifier when the
// webhook URL is empty.
func New(webhookURL string, client *http.Client) Notifier {
	if strings.TrimSpace(webhookURL) == "" {
		return &logNotifier{}
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &webhookNotifier{url: webhookURL, client: client}
}

type logNotifier struct{}

func (n *logNotifier) Notify(ctx context.Context, severity Severity, scope, workflow, message string) {
	log.Warn(
		"operator notification (no webhook configured)",
		"severity", severity,
		"scope", scope,
		"workflow", workflow,
		"message", message,
	)
}

type webhookNotifier struct {
	url    string
	client *http.Client
}

func (n *webhookNotifier) Notify(ctx context.Context, severity Severity, scope, workflow, message string) {
	event := Event{
		ID:        uuid.New(),
		Severity:  severity,
		Scope:     scope,
		Workflow:  workflow,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	if err := n.post(ctx, event); err != nil {
		log.Error(
			"operator notification delivery failure",
			"scope", scope,
			"workflow", workflow,
			"error", err,
		)
	}
}

func (n *webhookNotifier) post(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("webhook responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return nil
}
