package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainMiddleware_Order(t *testing.T) {
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := ChainMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("inner"), mark("outer"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRecoverMiddleware(t *testing.T) {
	handler := NewRecoverMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal_server_error")
}

func TestLoggerMiddleware_OmitsAuthorizationCode(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(nil)

	handler := NewLoggerMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/twitter/callback/?state=s&code=secret-code", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/twitter/?error=access_denied", nil))

	out := buf.String()
	assert.NotContains(t, out, "secret-code")
	assert.Contains(t, out, "error=access_denied")
	assert.Contains(t, out, "418")
}

func TestMetricsMiddleware_CountsStatus(t *testing.T) {
	handler := NewMetricsMiddleware("metrics-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	counter := httpRequests.WithLabelValues("metrics-test", "GET", "202")
	before := testutil.ToFloat64(counter)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestResponseWriterDelegator_SharedAcrossMiddleware(t *testing.T) {
	rr := httptest.NewRecorder()
	outer := wrapResponseWriter(rr)
	inner := wrapResponseWriter(outer)
	require.Same(t, outer, inner)

	_, _ = inner.Write([]byte("abc"))
	assert.Equal(t, http.StatusOK, outer.Status())
	assert.Equal(t, 3, outer.BytesWritten())
}

func TestBearerAuthMiddleware(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(ctx, storage.KeyInternalToken, "internal-secret"))

	tests := []struct {
		name         string
		key          string
		authHeader   string
		expectStatus int
	}{
		{"valid bearer token", storage.KeyInternalToken, "Bearer internal-secret", http.StatusOK},
		{"invalid bearer token", storage.KeyInternalToken, "Bearer other", http.StatusUnauthorized},
		{"basic scheme", storage.KeyInternalToken, "Basic internal-secret", http.StatusUnauthorized},
		{"no auth header", storage.KeyInternalToken, "", http.StatusUnauthorized},
		{"nothing stored under key", storage.KeyExternalToken, "Bearer internal-secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewBearerAuthMiddleware(store, tt.key, "atweet")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("POST", "/twitter/tweet/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectStatus, rr.Code)
			if tt.expectStatus == http.StatusUnauthorized {
				assert.Equal(t, `Bearer realm="atweet"`, rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
