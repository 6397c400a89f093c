// Package telegram provides the transport client and the presentation
// adapter: it decodes Telegram updates into engine events and renders engine
// replies back into Telegram messages, keyboards, and file uploads.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tgrange/mediabot/common/retry"
)

// longPollTimeout is the Telegram getUpdates long-poll timeout in seconds.
const longPollTimeout = 60

// Client wraps the Telegram Bot API connection.
type Client struct {
	api *tgbotapi.BotAPI
	log *slog.Logger
}

// New authenticates against the Telegram Bot API.
func New(token string, debug bool, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}
	api.Debug = debug
	log.Info("authorized on Telegram", "account", api.Self.UserName)
	return &Client{api: api, log: log}, nil
}

// Username returns the authenticated bot account name.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// Updates starts long polling and returns the update channel. The channel is
// closed after ctx is cancelled.
func (c *Client) Updates(ctx context.Context) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = longPollTimeout
	updates := c.api.GetUpdatesChan(cfg)

	go func() {
		<-ctx.Done()
		c.api.StopReceivingUpdates()
	}()

	return updates
}

// Send delivers any chattable payload, retrying transient transport failures
// with backoff. File uploads in particular can fail on flaky connections.
func (c *Client) Send(ctx context.Context, msg tgbotapi.Chattable) error {
	return retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
	}, func() error {
		_, err := c.api.Request(msg)
		return err
	})
}

// AnswerCallback acknowledges a callback query so the client stops showing a
// spinner. Failures are logged and swallowed: the acknowledgement is cosmetic.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) {
	if err := c.Send(ctx, tgbotapi.NewCallback(callbackID, "")); err != nil {
		c.log.Warn("answer callback", "err", err)
	}
}
