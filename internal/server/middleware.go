package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dgellow/atweet/internal/broker"
	"github.com/dgellow/atweet/internal/crypto"
	jsonwriter "github.com/dgellow/atweet/internal/json"
	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/storage"
)

// MiddlewareFunc is a function that wraps an http.Handler
type MiddlewareFunc func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions. The last one is outermost.
func ChainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// responseWriterDelegator wraps http.ResponseWriter to capture status and bytes written
// while properly delegating all optional interfaces through Unwrap
type responseWriterDelegator struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriterDelegator {
	if d, ok := w.(*responseWriterDelegator); ok {
		return d
	}
	return &responseWriterDelegator{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (r *responseWriterDelegator) Status() int {
	return r.status
}

func (r *responseWriterDelegator) BytesWritten() int {
	return r.written
}

func (r *responseWriterDelegator) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseWriterDelegator) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.written += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController
func (r *responseWriterDelegator) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

var _ http.ResponseWriter = (*responseWriterDelegator)(nil)

// NewLoggerMiddleware adds request/response logging
func NewLoggerMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"bytes":       wrapped.BytesWritten(),
				"remote_addr": r.RemoteAddr,
			}

			// The callback query carries the authorization code
			if r.URL.RawQuery != "" && r.URL.Query().Get("code") == "" {
				fields["query"] = r.URL.RawQuery
			}

			log.LogInfoWithFields(prefix, "request", fields)
		})
	}
}

// NewMetricsMiddleware counts requests and records latency under route
func NewMetricsMiddleware(route string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.Status())).Inc()
			httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

// NewRecoverMiddleware recovers from panics
func NewRecoverMiddleware(prefix string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Logf("<%s> Recovered from panic: %v", prefix, err)
					jsonwriter.WriteInternalServerError(w, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewBearerAuthMiddleware admits requests whose bearer token equals the value
// stored under key. An empty stored value admits nobody.
func NewBearerAuthMiddleware(store storage.CredentialStore, key, realm string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := bearerMatches(r.Context(), store, key, broker.BearerToken(r.Header))
			if err != nil {
				log.LogErrorWithFields("auth", "Failed to read credential", map[string]any{
					"key":   key,
					"error": err.Error(),
				})
				jsonwriter.WriteInternalServerError(w, "credential store unavailable")
				return
			}
			if !ok {
				log.LogTraceWithFields("auth", "Bearer auth failed", map[string]any{
					"path": r.URL.Path,
				})
				jsonwriter.WriteUnauthorized(w, realm, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerMatches(ctx context.Context, store storage.CredentialStore, key, presented string) (bool, error) {
	if presented == "" {
		return false, nil
	}
	expected, err := storage.GetOrEmpty(ctx, store, key)
	if err != nil {
		return false, err
	}
	return crypto.Equal(presented, expected), nil
}
