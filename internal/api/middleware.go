package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/observability/metrics"
	"AgentWallet-Kit/pkg/logger"
)

// requireToken 校验静态 Bearer Token。token 为空时不做认证。
func requireToken(token string, public map[string]bool, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	expected := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		raw := r.Header.Get("Authorization")
		scheme, provided, ok := strings.Cut(raw, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), expected) != 1 {
			logger.Audit().Warn("access_denied",
				slog.String("path", r.URL.Path),
				slog.String("method", r.Method),
			)
			writeError(w, xerrors.New(codeUnauthorized, ""))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe 记录请求指标与审计日志。
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		duration := time.Since(start)
		metrics.ObserveHTTPRequest(pattern, r.Method, sw.status, duration)
		logger.Audit().Info("api_request",
			slog.String("pattern", pattern),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", duration.Milliseconds()),
		)
	})
}

// statusWriter 捕获响应状态码。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
