package handlers

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/persona-navigator/logger"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the websocket upgrade through to the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestLogger logs one entry per request.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info(r.Context(), "http request", map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
		})
	}
}

// APIKeyMiddleware requires "Authorization: Bearer <key>" on every request. Websocket
// clients that cannot set headers may pass the key as the "token" query parameter. An empty
// key disables the check.
type APIKeyMiddleware struct {
	key    string
	logger logger.Logger
}

// NewAPIKeyMiddleware creates a new API key middleware.
func NewAPIKeyMiddleware(key string, log logger.Logger) *APIKeyMiddleware {
	return &APIKeyMiddleware{key: key, logger: log}
}

// Handler wraps an HTTP handler with API key authentication.
func (m *APIKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.key == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(m.key)) != 1 {
			m.logger.Warn(r.Context(), "invalid api key", map[string]interface{}{
				"path": r.URL.Path,
			})
			respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
