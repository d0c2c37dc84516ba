// Package slack posts escalations for severe tickets to a Slack incoming
// webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sift/internal/triage"
)

const (
	maxTicketLen = 2000
	httpTimeout  = 10 * time.Second
)

// Notifier implements triage.Notifier on a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Notify posts an escalation to the configured Slack webhook.
func (n *Notifier) Notify(ctx context.Context, e *triage.Escalation) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(e))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "escalation posted to slack", "triage_id", e.ID)
	return nil
}

func buildMessage(e *triage.Escalation) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(e),
			{"type": "divider"},
			fieldsBlock(e),
			{"type": "divider"},
			summaryBlock(e),
			relatedBlock(e),
			{"type": "divider"},
			contextBlock(e),
		},
	}
}

func headerBlock(e *triage.Escalation) map[string]any {
	text := fmt.Sprintf("%s Escalation: %s / %s", severityEmoji(e.Result.Severity), e.Result.Category, e.Result.Severity)
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(e *triage.Escalation) map[string]any {
	known := "no"
	if e.Result.KnownIssue {
		known = "yes"
	}
	return map[string]any{
		"type": "section",
		"fields": []map[string]any{
			{"type": "mrkdwn", "text": fmt.Sprintf("*Category:* %s", e.Result.Category)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", e.Result.Severity)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Known issue:* %s", known)},
			{"type": "mrkdwn", "text": fmt.Sprintf("*Provider:* %s", e.Provider)},
		},
	}
}

func summaryBlock(e *triage.Escalation) map[string]any {
	summary := e.Result.Summary
	if summary == "" {
		summary = "_No summary._"
	}
	text := fmt.Sprintf("*Summary*\n%s\n\n*Next step*\n%s\n\n*Ticket*\n>%s",
		summary,
		e.Result.SuggestedNextStep,
		strings.ReplaceAll(truncate(e.Description, maxTicketLen), "\n", "\n>"),
	)
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func relatedBlock(e *triage.Escalation) map[string]any {
	var b strings.Builder
	b.WriteString("*Related KB*")
	if len(e.Result.RelatedIssues) == 0 {
		b.WriteString("\n_No related entries._")
	}
	for _, m := range e.Result.RelatedIssues {
		fmt.Fprintf(&b, "\n• `%s` %s (%.3f)", m.ID, m.Title, m.Similarity)
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": b.String(),
		},
	}
}

func contextBlock(e *triage.Escalation) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("sift • triage %s • %s", e.ID, e.At.UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func severityEmoji(s triage.Severity) string {
	switch s {
	case triage.SeverityCritical:
		return "\U0001f534" // red circle
	case triage.SeverityHigh:
		return "\U0001f7e0" // orange circle
	case triage.SeverityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
