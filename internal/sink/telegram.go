package sink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTelegramAPI is the public Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// TelegramSender posts HTML messages to a chat through the Bot API.
type TelegramSender struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegramSender builds a Bot API sink. An empty apiURL uses DefaultTelegramAPI.
func NewTelegramSender(apiURL, token, chatID string) (*TelegramSender, error) {
	if token == "" {
		return nil, errors.New("telegram bot token required")
	}
	if chatID == "" {
		return nil, errors.New("telegram chat id required")
	}
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(8*time.Second).
		SetHeader("Content-Type", "application/json")
	return &TelegramSender{client: client, token: token, chatID: chatID}, nil
}

func (s *TelegramSender) Send(ctx context.Context, n Notification) error {
	var out telegramResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("token", s.token).
		SetBody(telegramMessage{
			ChatID:                s.chatID,
			Text:                  FormatHTML(n),
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		// url.Error embeds the request URL, which carries the bot token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: telegram request: %w", ErrDelivery, err)
	}
	if resp.IsError() || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("%w: telegram status %d: %s", ErrDelivery, resp.StatusCode(), out.Description)
		}
		return fmt.Errorf("%w: telegram status %d", ErrDelivery, resp.StatusCode())
	}
	return nil
}
