// Package bot adapts the dialogue engine to the Telegram transport.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/example/boskobot/internal/config"
	"github.com/example/boskobot/internal/dialog"
	"github.com/example/boskobot/internal/logger"
)

type command struct {
	name        string
	description string
}

// The command menu shown in Telegram clients. Order matters.
var commands = []command{
	{"start", "What this bot does"},
	{"shops", "List shops"},
	{"products", "Products at a shop"},
	{"search", "Search the catalog"},
	{"search_available", "Where a flavor is available now"},
	{"add_favorite", "Add favorite flavors or shops"},
	{"favorites", "Show your favorites"},
	{"remove_favorite", "Clear favorites"},
	{"daily_updates", "Schedule a daily digest"},
	{"stop_daily_updates", "Stop the daily digest"},
	{"cancel", "Abort the current dialogue"},
}

// Bot wires telebot routes to the dialogue engine.
type Bot struct {
	tb     *tele.Bot
	engine *dialog.Engine
	log    *slog.Logger
}

// New builds the bot transport and registers middleware. The dialogue engine
// is attached afterwards via Bind, since it needs the bot as its outbox.
func New(cfg *config.Config, m HandlerMetrics) (*Bot, error) {
	timeout := 10 * time.Second
	if cfg.Telegram.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("bot initialization failed: %w", err)
	}

	b := &Bot{tb: tb, log: logger.Component("tg")}

	tb.Use(RecoverMiddleware)
	tb.Use(LoggerMiddleware(m))
	if cfg.RateLimit.IntervalMS > 0 {
		tb.Use(RateLimitMiddleware(time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond))
	}

	return b, nil
}

// Bind attaches the dialogue engine, registers command routes and the text
// router, and publishes the command menu.
func (b *Bot) Bind(engine *dialog.Engine) {
	b.engine = engine

	for _, cmd := range commands {
		name := cmd.name
		b.tb.Handle("/"+name, func(c tele.Context) error {
			return b.engine.HandleCommand(b.ctx(c), name, eventFrom(c))
		})
	}
	b.tb.Handle(tele.OnText, b.onText)

	menu := make([]tele.Command, 0, len(commands))
	for _, cmd := range commands {
		menu = append(menu, tele.Command{Text: cmd.name, Description: cmd.description})
	}
	if err := b.tb.SetCommands(menu); err != nil {
		b.log.Warn("failed to publish command menu",
			slog.String("event", "tg.commands"),
			slog.String("err", err.Error()),
		)
	}
}

// onText routes free text: to the state machine while a dialogue is in
// progress, otherwise to the one-shot idle handlers.
func (b *Bot) onText(c tele.Context) error {
	ctx := b.ctx(c)
	ev := eventFrom(c)

	in, err := b.engine.InProgress(ctx, ev.ChatID)
	if err != nil {
		return err
	}
	if in {
		return b.engine.HandleText(ctx, ev)
	}

	handled, err := b.engine.HandleIdleText(ctx, ev)
	if err != nil || handled {
		return err
	}
	return c.Send("I wasn't expecting that — try /start for the command list.")
}

// Run starts long polling and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		b.tb.Start()
		close(done)
	}()

	b.log.Info("bot started",
		slog.String("event", "tg.start"),
		slog.String("mode", "polling"),
	)

	select {
	case <-ctx.Done():
		b.tb.Stop()
		<-done
	case <-done:
	}
	b.log.Info("bot stopped", slog.String("event", "tg.stop"))
}

// Send implements dialog.Outbox.
func (b *Bot) Send(ctx context.Context, chatID int64, text string, m dialog.Markup) error {
	var err error
	if markup := toTeleMarkup(m); markup != nil {
		_, err = b.tb.Send(tele.ChatID(chatID), text, markup)
	} else {
		_, err = b.tb.Send(tele.ChatID(chatID), text)
	}
	if err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

// SendDigest implements the scheduler's sender boundary. Digests carry
// Markdown formatting.
func (b *Bot) SendDigest(ctx context.Context, chatID int64, text string) error {
	_, err := b.tb.Send(tele.ChatID(chatID), text, tele.ModeMarkdown)
	if err != nil {
		return fmt.Errorf("send digest to chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) ctx(c tele.Context) context.Context {
	ctx := context.Background()
	if rid, ok := c.Get("rid").(string); ok && rid != "" {
		ctx = logger.WithRID(ctx, rid)
	}
	ev := eventFrom(c)
	return logger.WithUpdateMeta(ctx, ev.UserID, ev.ChatID)
}

func eventFrom(c tele.Context) dialog.Event {
	ev := dialog.Event{Text: c.Text(), Args: c.Args()}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		ev.UserID = user.ID
	}
	return ev
}
