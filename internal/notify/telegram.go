package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"go.uber.org/zap"
)

const alertTimeout = 5 * time.Second

// TelegramAlerter posts operator alerts into one chat.
type TelegramAlerter struct {
	bot    *bot.Bot
	chatID int64
	logger *zap.Logger
}

// NewTelegramAlerter creates a bot client for token. opts are passed to
// bot.New.
func NewTelegramAlerter(token string, chatID int64, logger *zap.Logger, opts ...bot.Option) (*TelegramAlerter, error) {
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramAlerter{bot: b, chatID: chatID, logger: logger}, nil
}

// Alert sends text to the operator chat. Failures are logged, never returned.
func (a *TelegramAlerter) Alert(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()

	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: a.chatID,
		Text:   "⚠️ " + text,
	})
	if err != nil {
		a.logger.Error("Failed to send operator alert", zap.Error(err))
		return
	}
	a.logger.Debug("Operator alert sent", zap.Int64("chat_id", a.chatID))
}

// LogAlerter is used when no Telegram chat is configured.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(_ context.Context, text string) {
	a.logger.Warn("Operator alert", zap.String("text", text))
}
