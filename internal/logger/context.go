package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ridKey ctxKey = iota
	userIDKey
	chatIDKey
	handlerKey
)

// NewRID builds a request id for one inbound update or timer fire.
func NewRID() string {
	id := uuid.New()
	return id.String()[:8]
}

// BuildRID derives a request id from update metadata, falling back to a random one.
func BuildRID(updateID int, chatID, userID int64) string {
	if updateID == 0 && chatID == 0 && userID == 0 {
		return NewRID()
	}
	return fmt.Sprintf("u%d-c%d-%s", updateID, chatID, NewRID())
}

// WithRID attaches a request id to the context.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ridKey, rid)
}

// RIDFrom extracts the request id from the context, if any.
func RIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ridKey).(string); ok {
		return v
	}
	return ""
}

// WithUpdateMeta attaches user and chat ids to the context.
func WithUpdateMeta(ctx context.Context, userID, chatID int64) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, chatIDKey, chatID)
}

// WithHandler attaches the active handler name to the context.
func WithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, handlerKey, handler)
}

// contextHandler injects context-carried request metadata into every record.
type contextHandler struct {
	inner slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if rid := RIDFrom(ctx); rid != "" {
			r.AddAttrs(slog.String("rid", rid))
		}
		if uid, ok := ctx.Value(userIDKey).(int64); ok && uid != 0 {
			r.AddAttrs(slog.Int64("user_id", uid))
		}
		if cid, ok := ctx.Value(chatIDKey).(int64); ok && cid != 0 {
			r.AddAttrs(slog.Int64("chat_id", cid))
		}
		if hid, ok := ctx.Value(handlerKey).(string); ok && hid != "" {
			r.AddAttrs(slog.String("handler", hid))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return contextHandler{inner: h.inner.WithGroup(name)}
}
