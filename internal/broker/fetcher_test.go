package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/atweet/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newMainServer(t *testing.T, access string) (*httptest.Server, string) {
	t.Helper()
	store, token := newMainStore(t, access)
	mux := http.NewServeMux()
	mux.Handle("GET "+AccessPath, NewHandler(store, true))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, token
}

func newSatelliteStore(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.UpdatePayload(context.Background(), storage.TokenSet{
		AccessToken:  "AT-old",
		RefreshToken: "RT-local",
		AccountID:    "1",
	}))
	return store
}

func TestFetcher_UpdatesOnlyAccessToken(t *testing.T) {
	server, token := newMainServer(t, "AT2")
	store := newSatelliteStore(t)
	ctx := context.Background()

	f := NewFetcher(server.URL+"/", token, store, nil, time.Second)
	require.True(t, f.Fetch(ctx))

	tokens, err := store.TokenSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.TokenSet{
		AccessToken:  "AT2",
		RefreshToken: "RT-local",
		AccountID:    "1",
	}, tokens)
}

func TestFetcher_Failures(t *testing.T) {
	server, token := newMainServer(t, "AT2")
	empty, emptyToken := newMainServer(t, "")

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	tests := []struct {
		name     string
		endpoint string
		token    string
	}{
		{"wrong token", server.URL, "wrong-" + token},
		{"main site has no token", empty.URL, emptyToken},
		{"unreachable", downURL, token},
		{"not found", server.URL + "/nope", token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newSatelliteStore(t)
			ctx := context.Background()

			f := NewFetcher(tt.endpoint, tt.token, store, nil, time.Second)
			assert.False(t, f.Fetch(ctx))

			access, err := store.Get(ctx, storage.KeyAccessToken)
			require.NoError(t, err)
			assert.Equal(t, "AT-old", access)
		})
	}
}

func TestFetcher_ConcurrentCallsShareOneRequest(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access":"AT3"}`))
	}))
	defer server.Close()

	store := newSatelliteStore(t)
	f := NewFetcher(server.URL, "token", store, nil, 5*time.Second)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.Fetch(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return requests.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, requests.Load())
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestFetcher_SendsRemoteTokenThroughOAuthTransport(t *testing.T) {
	var seen atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access":"AT4"}`))
	}))
	defer server.Close()

	base := &http.Client{Timeout: 3 * time.Second, Transport: http.DefaultTransport}
	f := NewFetcher(server.URL, "shared-token", newSatelliteStore(t), base, time.Second)

	tr, ok := f.client.Transport.(*oauth2.Transport)
	require.True(t, ok, "fetcher transport is %T", f.client.Transport)
	assert.Equal(t, base.Transport, tr.Base)
	assert.Equal(t, 3*time.Second, f.client.Timeout)

	require.True(t, f.Fetch(context.Background()))
	assert.Equal(t, "Bearer shared-token", seen.Load())
}
