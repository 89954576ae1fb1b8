package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Parse modes accepted by sendMessage.
const (
	ModeMarkdownV2 = "MarkdownV2"
	ModeMarkdown   = "Markdown"
	ModeHTML       = "HTML"
	ModePlain      = ""
)

const defaultBaseURL = "https://api.telegram.org"

// APIError is a Bot API reply with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// InlineButton is one inline keyboard button.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// CallbackData encodes a callback the way telebot routes registered buttons:
// "\f" + unique, then "|" + payload when present.
func CallbackData(unique string, payload ...string) string {
	data := "\f" + unique
	if len(payload) > 0 {
		data += "|" + strings.Join(payload, "|")
	}
	return data
}

// InlineKeyboard is a reply_markup with inline rows.
type InlineKeyboard struct {
	Rows [][]InlineButton `json:"inline_keyboard"`
}

// BotAPI provides a direct Telegram Bot API client for outbound messages.
type BotAPI struct {
	client *resty.Client
}

// NewBotAPI creates a new direct Telegram Bot API client.
func NewBotAPI(token string) *BotAPI {
	return NewBotAPIWithBase(defaultBaseURL, token)
}

// NewBotAPIWithBase points the client at another Bot API server.
func NewBotAPIWithBase(baseURL, token string) *BotAPI {
	return &BotAPI{
		client: resty.New().SetBaseURL(strings.TrimRight(baseURL, "/") + "/bot" + token),
	}
}

type apiReply struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Call makes a raw API call and returns the result field.
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		Post("/" + method)
	if err != nil {
		return nil, fmt.Errorf("telegram API call %s failed: %w", method, err)
	}
	var reply apiReply
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		return nil, &APIError{Method: method, Code: resp.StatusCode(), Description: "unreadable reply"}
	}
	if !reply.OK {
		return nil, &APIError{Method: method, Code: reply.ErrorCode, Description: reply.Description}
	}
	return reply.Result, nil
}

// SendMessage sends a text message with the given parse mode.
func (b *BotAPI) SendMessage(ctx context.Context, chatID, text, parseMode string, replyMarkup interface{}) error {
	params := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if parseMode != ModePlain {
		params["parse_mode"] = parseMode
	}
	if replyMarkup != nil {
		params["reply_markup"] = replyMarkup
	}
	_, err := b.Call(ctx, "sendMessage", params)
	return err
}

// SendWithFallback sends text as MarkdownV2 and, when Telegram rejects the
// entities, resends fallback without a parse mode.
func (b *BotAPI) SendWithFallback(ctx context.Context, chatID, text, fallback string, replyMarkup interface{}) error {
	err := b.SendMessage(ctx, chatID, text, ModeMarkdownV2, replyMarkup)
	var apiErr *APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.Code != 400 {
		return err
	}
	return b.SendMessage(ctx, chatID, fallback, ModePlain, replyMarkup)
}

// AnswerCallbackQuery answers an inline callback query.
func (b *BotAPI) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	_, err := b.Call(ctx, "answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackQueryID,
		"text":              text,
		"show_alert":        showAlert,
	})
	return err
}

// SetWebhook sets the webhook URL.
func (b *BotAPI) SetWebhook(ctx context.Context, url string) error {
	_, err := b.Call(ctx, "setWebhook", map[string]interface{}{
		"url": url,
	})
	return err
}

// CheckTelegramIP verifies the request originates from Telegram's IP range.
func CheckTelegramIP(ip string) bool {
	// 149.154.160.0/20 and 91.108.4.0/22
	for _, prefix := range []string{"149.154.", "91.108."} {
		if strings.HasPrefix(ip, prefix) {
			return true
		}
	}
	return false
}
