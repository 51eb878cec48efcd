// Package slack sends triage escalations to Slack via incoming webhooks.
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

	"github.com/okapihealth/okapi/internal/triage"
)

const (
	maxStepsLen = 3000
	httpTimeout = 10 * time.Second
)

// Notifier sends triage results to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a triage result to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, result *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(result)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(r *triage.Result) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			stepsBlock(r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.Result) map[string]any {
	title := "Triage Escalation"
	if r.UsedFallback {
		title = "Triage Fallback"
	}
	text := fmt.Sprintf("%s %s: %s", tierEmoji(r.RiskTier), title, r.RiskTier)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *triage.Result) map[string]any {
	referral := "no"
	if r.ReferralRecommended {
		referral = "yes"
	}
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Risk tier:* %s", r.RiskTier),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Uncertainty:* %s", r.Uncertainty),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Referral:* %s", referral),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Provider:* %s", r.Provider),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*AI latency:* %dms", r.AILatencyMs),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Danger override:* %t", r.DangerOverride),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func stepsBlock(r *triage.Result) map[string]any {
	var b strings.Builder
	if len(r.DangerSigns) > 0 {
		fmt.Fprintf(&b, "*Danger signs:* %s\n\n", strings.Join(r.DangerSigns, ", "))
	}
	b.WriteString("*Next steps*\n")
	for _, step := range r.RecommendedNextSteps {
		fmt.Fprintf(&b, "• %s\n", step)
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": truncate(b.String(), maxStepsLen),
		},
	}
}

func contextBlock(r *triage.Result) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("okapi • triage %s • encounter %s • %s",
				r.ID, r.EncounterID, r.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func tierEmoji(tier triage.Level) string {
	switch tier {
	case triage.LevelRed:
		return "\U0001f534" // red circle
	case triage.LevelYellow:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
