package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
)

var logger *slog.Logger

// InitLogger installs the process logger on stdout and as slog.Default.
func InitLogger(level, format string) {
	InitLoggerWithWriter(os.Stdout, level, format)
}

// InitLoggerWithWriter is InitLogger with a caller-supplied sink. format
// "json" selects the JSON handler; anything else is logfmt text.
func InitLoggerWithWriter(w io.Writer, level, format string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:       parseLevel(level),
		AddSource:   parseLevel(level) <= slog.LevelDebug,
		ReplaceAttr: redactSecrets,
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// FromContext returns the process logger annotated with the request id and
// user id carried by ctx, when present.
func FromContext(ctx context.Context) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}

	attrs := make([]any, 0, 4)

	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}

	if userID, ok := ctx.Value(userIDKey).(string); ok && userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}

	if len(attrs) > 0 {
		return logger.With(attrs...)
	}
	return logger
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID
func RequestIDFromContext(ctx context.Context) string {
	reqID, _ := ctx.Value(requestIDKey).(string)
	return reqID
}

// WithUserID tags ctx with the authenticated user. Session ids and tokens
// never go into the context logger.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// parseLevel accepts the names slog itself understands (debug, info, warn,
// error, with optional +N offsets) and falls back to info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// redactedKeys are attribute names whose values grant access to a session.
// Logs identify sessions by user_id only.
var redactedKeys = map[string]struct{}{
	"token":         {},
	"session_token": {},
	"session_id":    {},
	"cookie":        {},
	"password":      {},
	"csrf_token":    {},
}

func redactSecrets(groups []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[a.Key]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
