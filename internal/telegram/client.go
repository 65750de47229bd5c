// Package telegram implements the game's Channel over the Telegram Bot API
// with long polling. No SDK, just the handful of methods the game needs
// over plain HTTP.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ClientConfig configures the Bot API client.
type ClientConfig struct {
	Token   string
	BaseURL string
	// PollTimeout is the long-poll hold time for getUpdates.
	PollTimeout time.Duration
	HTTPClient  *http.Client
}

// Client is a minimal Bot API client.
type Client struct {
	token       string
	baseURL     string
	pollTimeout time.Duration
	httpClient  *http.Client
	logger      *zap.Logger

	// self is populated by GetMe; the poller needs it to recognize
	// replies to the persona's own messages.
	self *User
}

// NewClient creates a Bot API client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 50 * time.Second
	}
	if cfg.HTTPClient == nil {
		// The long poll holds the connection open for PollTimeout, so the
		// HTTP timeout must exceed it.
		cfg.HTTPClient = &http.Client{Timeout: cfg.PollTimeout + 15*time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:       cfg.Token,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		pollTimeout: cfg.PollTimeout,
		httpClient:  cfg.HTTPClient,
		logger:      logger.Named("telegram"),
	}, nil
}

// call performs one Bot API method call, decoding the result into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var body io.Reader
	if params != nil {
		payload, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s failed: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe fetches and caches the bot's own identity.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	c.self = &me
	c.logger.Info("connected to Telegram", zap.String("username", me.Username))
	return &me, nil
}

// Username returns the bot's @username, if GetMe has run.
func (c *Client) Username() string {
	if c.self == nil {
		return ""
	}
	return c.self.Username
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls for the next batch of updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(c.pollTimeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

type sendMessageRequest struct {
	ChatID           int64                 `json:"chat_id"`
	Text             string                `json:"text"`
	ReplyToMessageID int64                 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) sendMessage(ctx context.Context, req sendMessageRequest) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// AnswerCallback acknowledges an inline-button press.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	}, nil)
}

type chatIDRequest struct {
	ChatID int64 `json:"chat_id"`
}

// getChatMemberCount returns the member count including the bot itself.
func (c *Client) getChatMemberCount(ctx context.Context, chatID int64) (int, error) {
	var count int
	if err := c.call(ctx, "getChatMemberCount", chatIDRequest{ChatID: chatID}, &count); err != nil {
		return 0, err
	}
	return count, nil
}
