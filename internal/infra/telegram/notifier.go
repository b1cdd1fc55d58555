package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/port"
)

const (
	callbackApprovePrefix = "auth_approve:"
	callbackRejectPrefix  = "auth_reject:"
)

// Notifier delivers approval prompts over the Bot API.
type Notifier struct {
	client *Client
	logger *zap.Logger
}

// NewNotifier constructs the prompt sender.
func NewNotifier(client *Client, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{client: client, logger: logger}
}

// Notify sends the two-choice approval prompt to the chat.
func (n *Notifier) Notify(ctx context.Context, messagingID int64, summary port.RequestSummary) error {
	markup := &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "✅ Approve", CallbackData: callbackApprovePrefix + summary.RequestID},
			{Text: "❌ Reject", CallbackData: callbackRejectPrefix + summary.RequestID},
		}},
	}

	if _, err := n.client.SendMessage(ctx, messagingID, promptText(summary), markup); err != nil {
		return fmt.Errorf("send approval prompt: %w", err)
	}

	n.logger.Info("approval prompt sent",
		zap.String("request_id", summary.RequestID),
		zap.Int64("messaging_id", messagingID),
	)
	return nil
}

func promptText(summary port.RequestSummary) string {
	var b strings.Builder
	b.WriteString("🔐 <b>Operation approval request</b>\n\n")
	fmt.Fprintf(&b, "👤 <b>Client:</b> %s\n", html.EscapeString(summary.ClientID))
	fmt.Fprintf(&b, "💰 <b>Operation:</b> %s\n", html.EscapeString(summary.Operation))
	if summary.Amount != nil {
		fmt.Fprintf(&b, "💵 <b>Amount:</b> %s\n", html.EscapeString(*summary.Amount))
	}
	fmt.Fprintf(&b, "\n⏰ <b>Time to decide:</b> %s\n", formatWindow(summary.ExpiresIn))
	b.WriteString("\n<i>Allow this operation?</i>")
	return b.String()
}

func formatWindow(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	d = d.Round(time.Second)
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}

var _ port.Notifier = (*Notifier)(nil)
