package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgellow/atweet/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMainStore(t *testing.T, access string) (*storage.MemoryStorage, string) {
	t.Helper()
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, store.UpdatePayload(ctx, storage.TokenSet{AccessToken: access, RefreshToken: "RT-main"}))
	token, err := EnsureInternalToken(ctx, store)
	require.NoError(t, err)
	return store, token
}

func TestHandler_GrantsMainWithCorrectToken(t *testing.T) {
	store, token := newMainStore(t, "AT-main")
	h := NewHandler(store, true)

	r := httptest.NewRequest(http.MethodGet, AccessPath, nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp AccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "AT-main", resp.Access)
	assert.NotContains(t, w.Body.String(), "RT-main")
}

func TestHandler_Denials(t *testing.T) {
	store, token := newMainStore(t, "AT-main")
	_, otherToken := newMainStore(t, "AT-other")

	tests := []struct {
		name     string
		mainSite bool
		header   string
	}{
		{"wrong token", true, "Bearer not-the-token"},
		{"no token", true, ""},
		{"basic scheme", true, "Basic " + token},
		{"satellite role", false, "Bearer " + token},
		{"token of another instance", true, "Bearer " + otherToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(store, tt.mainSite)

			r := httptest.NewRequest(http.MethodGet, AccessPath, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotContains(t, w.Body.String(), "AT-main")
			assert.NotContains(t, w.Body.String(), "access")
			assert.Equal(t, `Bearer realm="atweet-internal"`, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestHandler_NoInternalTokenDeniesEverything(t *testing.T) {
	store := storage.NewMemoryStorage()
	h := NewHandler(store, true)

	assert.ErrorIs(t, h.Authorize(context.Background(), http.Header{"Authorization": {"Bearer x"}}), ErrPermissionDenied)
}
