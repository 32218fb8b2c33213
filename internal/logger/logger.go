// Package logger configures the process-wide structured logger and provides
// component-scoped child loggers with context-carried request metadata.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/example/boskobot/internal/config"
)

var (
	initOnce sync.Once

	// L is the base logger. It defaults to a JSON stdout logger so packages
	// can log before Init runs in tests.
	L = slog.New(contextHandler{inner: slog.NewJSONHandler(os.Stdout, nil)})
)

// Init configures the global structured logger. It may be called only once.
func Init(cfg *config.Config) {
	initOnce.Do(func() {
		level := selectLevel(cfg)
		opts := &slog.HandlerOptions{Level: level}

		var inner slog.Handler
		if cfg != nil && cfg.Logging.Format == "text" {
			inner = slog.NewTextHandler(os.Stdout, opts)
		} else {
			inner = slog.NewJSONHandler(os.Stdout, opts)
		}

		L = slog.New(contextHandler{inner: inner})
		slog.SetDefault(L)
	})
}

func selectLevel(cfg *config.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return L
	}
	return L.With("component", trimmed)
}

// RoundMS truncates a duration to millisecond precision for log output.
func RoundMS(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

// SanitizeLimit trims a string for logging, cutting it at max runes.
func SanitizeLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
