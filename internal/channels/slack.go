// Package channels delivers confirmation prompts to places a human will see them.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/bus"
)

// SlackNotifier posts one incoming-webhook message per new pending action,
// so an approver away from the mirror learns a decision is waiting.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	// approveHint is appended to the message, e.g. "mirrorhub approve".
	approveHint string
}

// NewSlackNotifier creates a notifier for an incoming-webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL:  strings.TrimSpace(webhookURL),
		client:      &http.Client{Timeout: 10 * time.Second},
		approveHint: "mirrorhub approve",
	}
}

// Handle is a bus.Handler. Only new pending actions are announced.
func (n *SlackNotifier) Handle(ctx context.Context, evt *bus.ConfirmationEvent) {
	if n.webhookURL == "" || evt.Status != approval.StatusPending {
		return
	}
	if err := n.Send(ctx, evt); err != nil {
		slog.Warn("Slack notification failed", "action_id", evt.ActionID, "error", err)
	}
}

// Send posts the prompt for evt.
func (n *SlackNotifier) Send(ctx context.Context, evt *bus.ConfirmationEvent) error {
	text := fmt.Sprintf("Confirmation needed: %s", evt.Description)
	body := fmt.Sprintf("*Confirmation needed*\n%s\n`%s`", evt.Description, evt.ActionID)
	if tool, ok := evt.Details["tool"].(string); ok && tool != "" {
		body += fmt.Sprintf(" (%s)", tool)
	}
	msg := &slack.WebhookMessage{
		Text: text,
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
			slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, "Answer with `"+n.approveHint+"`", false, false)),
		}},
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}
