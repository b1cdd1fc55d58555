package telegram

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/core/domain"
	tgclient "github.com/arklim/approval-gate/internal/infra/telegram"
	"github.com/arklim/approval-gate/internal/usecase"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	callbackApprovePrefix = "auth_approve:"
	callbackRejectPrefix  = "auth_reject:"
)

// Update mirrors the subset of the Bot API update payload the approval
// flow consumes.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Contact struct {
	PhoneNumber string `json:"phone_number"`
	UserID      int64  `json:"user_id"`
}

type Message struct {
	MessageID int64    `json:"message_id"`
	From      *User    `json:"from"`
	Chat      Chat     `json:"chat"`
	Text      string   `json:"text"`
	Contact   *Contact `json:"contact"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// identityLinker is the slice of the registry the webhook needs.
type identityLinker interface {
	LinkMessagingIdentity(ctx context.Context, phone string, messagingID int64, profile domain.ClientProfile) (*domain.Client, error)
}

// decisionApplier is the slice of the lifecycle the webhook needs.
type decisionApplier interface {
	Transition(ctx context.Context, requestID string, actorID int64, decision domain.Decision) (*domain.AuthRequest, error)
}

// botAPI covers the Bot API calls the webhook replies with.
type botAPI interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *tgclient.InlineKeyboardMarkup) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error
}

// WebhookHandler turns Bot API updates into registry and lifecycle calls.
type WebhookHandler struct {
	registry  identityLinker
	lifecycle decisionApplier
	client    botAPI
	secret    string
	logger    *zap.Logger
}

func NewWebhookHandler(
	registry identityLinker,
	lifecycle decisionApplier,
	client botAPI,
	secret string,
	logger *zap.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		registry:  registry,
		lifecycle: lifecycle,
		client:    client,
		secret:    secret,
		logger:    logger,
	}
}

// RegisterRoutes binds the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhook", h.Handle)
}

// Handle processes a single Bot API update. The response is 200 once the
// payload parses; Telegram retries non-2xx responses and the decision
// path must not be replayed.
func (h *WebhookHandler) Handle(c *gin.Context) {
	if h.secret != "" {
		presented := c.GetHeader(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.secret)) != 1 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	var update Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Contact != nil:
		h.handleContact(ctx, update.Message)
	case update.Message != nil:
		h.handleCommand(ctx, update.Message)
	}

	c.Status(http.StatusOK)
}

func (h *WebhookHandler) handleCommand(ctx context.Context, msg *Message) {
	if msg.From == nil {
		return
	}

	command := msg.Text
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}

	switch command {
	case "/start":
		h.reply(ctx, msg.Chat.ID, startText(msg.From))
	case "/help":
		h.reply(ctx, msg.Chat.ID, helpText())
	default:
		// Ignore free-form chatter.
	}
}

func (h *WebhookHandler) handleContact(ctx context.Context, msg *Message) {
	if msg.From == nil || msg.Contact == nil {
		return
	}

	// Only the sender's own contact links an identity.
	if msg.Contact.UserID != 0 && msg.Contact.UserID != msg.From.ID {
		h.reply(ctx, msg.Chat.ID, "❌ Please share your own contact to link your account.")
		return
	}

	profile := domain.ClientProfile{}
	if msg.From.FirstName != "" {
		profile.FirstName = &msg.From.FirstName
	}
	if msg.From.LastName != "" {
		profile.LastName = &msg.From.LastName
	}
	if msg.From.Username != "" {
		profile.Username = &msg.From.Username
	}

	_, err := h.registry.LinkMessagingIdentity(ctx, msg.Contact.PhoneNumber, msg.From.ID, profile)
	switch {
	case err == nil:
		h.reply(ctx, msg.Chat.ID, "✅ <b>Account linked.</b>\n\nYou will now receive operation approval requests here.")
	case errors.Is(err, usecase.ErrPhoneNotFound):
		h.reply(ctx, msg.Chat.ID, "❌ This phone number is not registered. Contact your system administrator.")
	case errors.Is(err, usecase.ErrIdentityConflict):
		h.reply(ctx, msg.Chat.ID, "❌ This phone number is already linked to another account.")
	default:
		h.logger.Error("link messaging identity",
			zap.Int64("messaging_id", msg.From.ID),
			zap.Error(err),
		)
		h.reply(ctx, msg.Chat.ID, "❌ Something went wrong. Please try again later.")
	}
}

func (h *WebhookHandler) handleCallback(ctx context.Context, cb *CallbackQuery) {
	var decision domain.Decision
	var requestID string

	switch {
	case strings.HasPrefix(cb.Data, callbackApprovePrefix):
		decision = domain.DecisionApprove
		requestID = strings.TrimPrefix(cb.Data, callbackApprovePrefix)
	case strings.HasPrefix(cb.Data, callbackRejectPrefix):
		decision = domain.DecisionReject
		requestID = strings.TrimPrefix(cb.Data, callbackRejectPrefix)
	default:
		h.answer(ctx, cb.ID, "❌ Unknown action", true)
		return
	}

	_, err := h.lifecycle.Transition(ctx, requestID, cb.From.ID, decision)
	if err != nil {
		h.answer(ctx, cb.ID, callbackErrorText(err), true)
		return
	}

	resultText := "✅ <b>Operation approved</b>"
	answerText := "✅ Operation approved"
	if decision == domain.DecisionReject {
		resultText = "❌ <b>Operation rejected</b>"
		answerText = "❌ Operation rejected"
	}

	h.answer(ctx, cb.ID, answerText, true)

	if cb.Message != nil {
		updated := fmt.Sprintf("%s\n\n%s", cb.Message.Text, resultText)
		if err := h.client.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, updated); err != nil {
			h.logger.Warn("edit prompt message",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
	}

	h.logger.Info("decision received",
		zap.String("request_id", requestID),
		zap.String("decision", string(decision)),
	)
}

func callbackErrorText(err error) string {
	switch {
	case errors.Is(err, usecase.ErrRequestNotFound):
		return "❌ Request not found or already handled"
	case errors.Is(err, usecase.ErrRequestExpired):
		return "❌ Request expired"
	case errors.Is(err, usecase.ErrAlreadyDecided):
		return "❌ Request already handled"
	case errors.Is(err, usecase.ErrUnauthorized):
		return "❌ You are not allowed to act on this request"
	default:
		return "❌ Something went wrong. Please try again"
	}
}

func (h *WebhookHandler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.client.SendMessage(ctx, chatID, text, nil); err != nil {
		h.logger.Warn("send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *WebhookHandler) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := h.client.AnswerCallbackQuery(ctx, callbackID, text, alert); err != nil {
		h.logger.Warn("answer callback", zap.String("callback_id", callbackID), zap.Error(err))
	}
}

func startText(from *User) string {
	return fmt.Sprintf(`🔐 <b>Welcome to the operation approval service!</b>

Hi, %s!

This bot asks you to confirm sensitive operations in your account.

<i>Your Telegram ID:</i> <code>%d</code>

Share your contact to link your account, or reach out to your system administrator.`, from.FirstName, from.ID)
}

func helpText() string {
	return `📋 <b>How this works</b>

🔹 When an operation needs your confirmation you receive a message with its details and Approve / Reject buttons

🔹 You have 5 minutes to decide

🔹 After the window closes the request is rejected automatically

<b>Commands:</b>
/start - Main menu
/help - This message`
}
