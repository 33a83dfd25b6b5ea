package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framegrab/internal/logging"
)

// HTTPLoggingMiddleware logs each request once it completes. The level
// follows the outcome: preflights at debug, 4xx at warn, 5xx at error.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	url := ctx.URL()
	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", url.Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
		slog.Int("status", ctx.Status()),
		slog.Duration("duration", time.Since(start)),
	}
	if url.RawQuery != "" {
		attrs = append(attrs, slog.String("query", url.RawQuery))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	logging.GetLogger("http").LogAttrs(ctx.Context(), requestLevel(ctx.Method(), ctx.Status()), "HTTP request completed", attrs...)
}

func requestLevel(method string, status int) slog.Level {
	switch {
	case method == http.MethodOptions:
		return slog.LevelDebug
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
