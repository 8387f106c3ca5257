package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

func InitLogger(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

type memberKey struct{}

// WithMember stores the authenticated member id for log correlation.
func WithMember(ctx context.Context, memberID int64) context.Context {
	return context.WithValue(ctx, memberKey{}, memberID)
}

// WithContext returns the default logger enriched with the member id found in ctx.
func WithContext(ctx context.Context, attrs ...any) *slog.Logger {
	if id, ok := ctx.Value(memberKey{}).(int64); ok {
		attrs = append(attrs, "member_id", id)
	}
	return slog.With(attrs...)
}
