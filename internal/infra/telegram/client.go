package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/approval-gate/internal/infra/config"
)

const defaultAPIBase = "https://api.telegram.org"

// Client is a thin Telegram Bot API client covering the calls the
// approval flow needs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

// NewClient constructs a Bot API client from the transport settings.
func NewClient(cfg config.TelegramSettings, logger *zap.Logger) *Client {
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultAPIBase,
		token:      cfg.BotToken,
		logger:     logger,
	}
}

// InlineKeyboardButton is a single callback button.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboardMarkup is the inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%s failed: %s (code %d)", method, parsed.Description, parsed.ErrorCode)
	}

	return parsed.Result, nil
}

// SendMessage posts an HTML-formatted message, optionally with an
// inline keyboard, and returns the created message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (int64, error) {
	payload := struct {
		ChatID      int64                 `json:"chat_id"`
		Text        string                `json:"text"`
		ParseMode   string                `json:"parse_mode"`
		ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: markup,
	}

	result, err := c.call(ctx, "sendMessage", payload)
	if err != nil {
		return 0, err
	}

	var message struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(result, &message); err != nil {
		return 0, fmt.Errorf("decode sent message: %w", err)
	}

	return message.MessageID, nil
}

// EditMessageText rewrites a previously sent message, typically to
// strip the decision buttons after a callback.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	payload := struct {
		ChatID    int64  `json:"chat_id"`
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: "HTML",
	}

	_, err := c.call(ctx, "editMessageText", payload)
	return err
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	payload := struct {
		CallbackQueryID string `json:"callback_query_id"`
		Text            string `json:"text,omitempty"`
		ShowAlert       bool   `json:"show_alert,omitempty"`
	}{
		CallbackQueryID: callbackQueryID,
		Text:            text,
		ShowAlert:       showAlert,
	}

	_, err := c.call(ctx, "answerCallbackQuery", payload)
	return err
}

// SetWebhook registers the public webhook URL with the Bot API.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := struct {
		URL                string `json:"url"`
		SecretToken        string `json:"secret_token,omitempty"`
		DropPendingUpdates bool   `json:"drop_pending_updates"`
	}{
		URL:                url,
		SecretToken:        secret,
		DropPendingUpdates: true,
	}

	_, err := c.call(ctx, "setWebhook", payload)
	if err == nil {
		c.logger.Info("telegram webhook registered", zap.String("url", url))
	}
	return err
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	payload := struct {
		DropPendingUpdates bool `json:"drop_pending_updates"`
	}{DropPendingUpdates: true}

	_, err := c.call(ctx, "deleteWebhook", payload)
	return err
}
