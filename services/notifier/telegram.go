package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Telegram posts alerts to a channel through the Bot API
type Telegram struct {
	client  *resty.Client
	token   string
	channel string
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram creates the transport. Without a token or channel it is
// disabled and Send only logs.
func NewTelegram(apiURL, token, channel string) *Telegram {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetTimeout(15 * time.Second)

	return &Telegram{
		client:  client,
		token:   token,
		channel: channel,
	}
}

// Name implements Transport
func (t *Telegram) Name() string {
	return "telegram"
}

// Enabled reports whether credentials are configured
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.channel != ""
}

// Send implements Transport
func (t *Telegram) Send(ctx context.Context, alert Alert) error {
	if !t.Enabled() {
		return nil
	}

	var result apiResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sendMessageRequest{
			ChatID:                t.channel,
			Text:                  alert.Text,
			ParseMode:             "HTML",
			DisableWebPagePreview: false,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}

	if resp.StatusCode() != http.StatusOK || !result.OK {
		return fmt.Errorf("Telegram API returned status %d: %s", resp.StatusCode(), result.Description)
	}

	return nil
}
