package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey struct{}

// Init builds the process logger, writing to stdout, and installs it as the
// slog default.
func Init(service, level, appEnv string) *slog.Logger {
	logger := New(os.Stdout, service, level, appEnv)
	slog.SetDefault(logger)
	return logger
}

// New returns a JSON logger, or a text logger with source positions when
// appEnv is development. Timestamps are UTC.
func New(w io.Writer, service, level, appEnv string) *slog.Logger {
	dev := appEnv == "development"
	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: dev,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.TimeValue(a.Value.Time().UTC().Truncate(time.Millisecond))
			}
			return a
		},
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if dev {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// With returns ctx carrying the current logger extended by args.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Alert logs at error with alert=true. Use it for conditions an operator
// must page on, such as a ledger integrity violation.
func Alert(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, append([]any{"alert", true}, args...)...)
}
