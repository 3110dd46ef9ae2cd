// Package middleware provides HTTP middleware for the API: bearer
// authentication, role checks, request logging and per-client rate limiting.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/welldanyogia/lyricsgate/internal/logger"
)

// LoggingMiddleware logs one structured entry per request
type LoggingMiddleware struct {
	logger *zap.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware instance
func NewLoggingMiddleware(log *zap.Logger) *LoggingMiddleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingMiddleware{logger: log}
}

// Handler returns an HTTP middleware that logs requests with their correlation ID
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := middleware.GetReqID(r.Context())
		r = r.WithContext(logger.SetCorrelationID(r.Context(), requestID))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// The query string is left out: reset links carry their secret there.
		fields := []zap.Field{
			zap.String("correlation_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		}

		switch {
		case ww.Status() >= 500:
			m.logger.Error("HTTP request completed with server error", fields...)
		case ww.Status() >= 400:
			m.logger.Warn("HTTP request completed with client error", fields...)
		default:
			m.logger.Info("HTTP request completed", fields...)
		}
	})
}

// StructuredLogger returns a chi-compatible request logger backed by zap
func StructuredLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return NewLoggingMiddleware(log).Handler
}
