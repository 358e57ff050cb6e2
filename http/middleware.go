package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sagarc03/sluice"
)

type loggerKey struct{}

// ConnectionLogger tags each request stream with a connection id, stores a
// logger carrying it in the request context, and logs the stream once it
// completes. A stream that never sent headers is logged as 499.
func ConnectionLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := base.With("conn", uuid.New().String())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), loggerKey{}, log)))

			status := ww.Status()
			if status == 0 {
				status = sluice.StatusClientClosed
			}

			log.Info("request",
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"proto", r.Proto,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

// LoggerFromContext returns the connection logger, or slog.Default() outside
// a ConnectionLogger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}
