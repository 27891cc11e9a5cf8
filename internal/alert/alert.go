// Package alert escalates inconsistencies that need an operator, such as a payment recorded
// against a canceled order or a refund that could not be written.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Alerter records a critical event. Implementations must not fail the caller.
type Alerter interface {
	Critical(ctx context.Context, msg string, args ...any)
}

const (
	sendTimeout = 5 * time.Second
	maxInFlight = 8
)

// Telegram logs the event and forwards it to an operator chat in the background. With no bot
// configured it only logs. At most maxInFlight sends run at once; beyond that alerts are only
// logged.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
	slots  chan struct{}
	wg     sync.WaitGroup
}

func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return &Telegram{log: log}, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramWithBot(bot, chatID, log), nil
}

// NewTelegramWithBot wires an already constructed bot, e.g. one pointed at another endpoint.
// The bot's HTTP client should carry a timeout.
func NewTelegramWithBot(bot *tgbotapi.BotAPI, chatID int64, log *slog.Logger) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, log: log, slots: make(chan struct{}, maxInFlight)}
}

// Critical never blocks on the chat API.
func (t *Telegram) Critical(ctx context.Context, msg string, args ...any) {
	t.log.ErrorContext(ctx, msg, append([]any{"critical", true}, args...)...)
	if t.bot == nil {
		return
	}
	out := tgbotapi.NewMessage(t.chatID, format(msg, args...))
	select {
	case t.slots <- struct{}{}:
	default:
		t.log.Warn("operator alert not forwarded, too many sends in flight", "alert", msg)
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.slots }()
		if _, err := t.bot.Send(out); err != nil {
			t.log.Error("send operator alert", "alert", msg, "err", err)
		}
	}()
}

// Flush waits for alerts already handed to the chat API.
func (t *Telegram) Flush() {
	t.wg.Wait()
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString("[CRITICAL] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, "\n%v: %v", args[i], args[i+1])
	}
	return b.String()
}
