// Package telegram adapts the Telegram Bot API to the notification handler
// contract. It is the reference delivery collaborator; the core never calls
// Telegram directly.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/hlopes/majordomo/internal/notify"
)

// Channel sends notifications to a single configured chat.
type Channel struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// New creates a Telegram delivery channel.
func New(token string, chatID int64, logger *slog.Logger) (*Channel, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		bot:    b,
		chatID: chatID,
		logger: logger.With("component", "telegram"),
	}, nil
}

// Handler returns the notification handler to register with the dispatcher.
func (c *Channel) Handler() notify.Handler {
	return func(ctx context.Context, message, format string) error {
		params := &bot.SendMessageParams{
			ChatID: c.chatID,
			Text:   message,
		}
		if format == notify.FormatHTML {
			params.ParseMode = models.ParseModeHTML
		}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("telegram send failed: %w", err)
		}
		c.logger.DebugContext(ctx, "Notification delivered", "chat_id", c.chatID)
		return nil
	}
}
