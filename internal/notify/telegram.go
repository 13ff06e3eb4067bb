package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Spok95/school-fees/internal/tg"
)

// Telegram forwards notifications to the admin chats. Info messages are only
// forwarded when Verbose is set.
type Telegram struct {
	bot     tg.Sender
	chatIDs []int64
	log     *zap.Logger
	Verbose bool
}

func NewTelegram(bot tg.Sender, chatIDs []int64, log *zap.Logger) *Telegram {
	return &Telegram{bot: bot, chatIDs: chatIDs, log: log.Named("telegram")}
}

func (t *Telegram) Notify(ctx context.Context, message string, sev Severity) {
	if sev == Info && !t.Verbose {
		return
	}
	text := prefix(sev) + message
	for _, id := range t.chatIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := tg.Send(t.bot, tgbotapi.NewMessage(id, text)); err != nil {
			t.log.Warn("send failed", zap.Int64("chat_id", id), zap.Error(err))
		}
	}
}

func prefix(sev Severity) string {
	switch sev {
	case Success:
		return "✅ "
	case Error:
		return "⚠️ "
	default:
		return "ℹ️ "
	}
}
