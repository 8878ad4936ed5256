package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TelegramNotifier sends messages through the Telegram Bot API.
type TelegramNotifier struct {
	endpoint string
	client   *http.Client
}

// TelegramOption configures a TelegramNotifier.
type TelegramOption func(*TelegramNotifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(n *TelegramNotifier) {
		if c != nil {
			n.client = c
		}
	}
}

// NewTelegramNotifier creates a notifier for cfg.BotToken.
func NewTelegramNotifier(cfg Config, opts ...TelegramOption) (*TelegramNotifier, error) {
	if cfg.BotToken == "" {
		return nil, ErrMissingToken
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	n := &TelegramNotifier{
		endpoint: apiURL + "/bot" + cfg.BotToken + "/sendMessage",
		client:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func (n *TelegramNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return ErrInvalidChat
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return errors.Join(ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Join(ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// the request error embeds the URL, which carries the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return errors.Join(ErrDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out apiResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode == http.StatusOK && out.OK {
		return nil
	}

	apiErr := fmt.Errorf("bot api status %d: %s", resp.StatusCode, out.Description)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return errors.Join(ErrRateLimited, apiErr)
	case http.StatusForbidden, http.StatusBadRequest:
		return errors.Join(ErrChatBlocked, apiErr)
	default:
		return errors.Join(ErrDelivery, apiErr)
	}
}
