package bot

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/example/boskobot/internal/logger"
)

// HandlerMetrics observes update handling latency; nil disables observation.
type HandlerMetrics interface {
	ObserveHandler(d time.Duration)
}

// RecoverMiddleware catches panics in handlers so one user's malformed update
// never kills the process.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.Component("tg").Error("panic recovered",
					slog.String("event", "tg.panic"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}

// RateLimitMiddleware enforces a minimum interval between updates from the
// same user. interval <= 0 disables the limiter.
func RateLimitMiddleware(interval time.Duration) tele.MiddlewareFunc {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || interval <= 0 {
				return next(c)
			}

			now := time.Now()
			lastSeenMu.Lock()
			if last, ok := lastSeen[user.ID]; ok && now.Sub(last) < interval {
				lastSeenMu.Unlock()
				logger.Component("tg").Warn("rate limit",
					slog.String("event", "tg.rate_limit"),
					slog.Int64("user_id", user.ID),
				)
				return nil
			}
			lastSeen[user.ID] = now
			lastSeenMu.Unlock()
			return next(c)
		}
	}
}

// LoggerMiddleware logs a receipt line per update and records handling
// latency when a metrics observer is supplied.
func LoggerMiddleware(m HandlerMetrics) tele.MiddlewareFunc {
	log := logger.Component("tg")
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			chatID, userID := int64(0), int64(0)
			if chat := c.Chat(); chat != nil {
				chatID = chat.ID
			}
			if user := c.Sender(); user != nil {
				userID = user.ID
			}
			rid := logger.BuildRID(upd.ID, chatID, userID)
			c.Set("rid", rid)

			start := time.Now()
			err := next(c)
			took := time.Since(start)
			if m != nil {
				m.ObserveHandler(took)
			}

			attrs := []any{
				slog.String("event", "tg.update"),
				slog.String("rid", rid),
				slog.Int64("chat_id", chatID),
				slog.Int64("user_id", userID),
				slog.Duration("duration", logger.RoundMS(took)),
			}
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
			}
			if err != nil {
				attrs = append(attrs, slog.String("err", err.Error()))
				log.Error("update failed", attrs...)
				return err
			}
			log.Debug("update handled", attrs...)
			return nil
		}
	}
}
