package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/atweet/internal/broker"
	"github.com/dgellow/atweet/internal/config"
	"github.com/dgellow/atweet/internal/server"
	"github.com/dgellow/atweet/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(mainSite bool, remote string) config.Config {
	return config.Config{
		Site: config.SiteConfig{BaseURL: "https://site.example", Addr: "127.0.0.1:0"},
		Twitter: config.TwitterConfig{
			ClientID:   "client-id",
			APIBaseURL: "http://127.0.0.1:1",
			Timeout:    time.Second,
		},
		Broker: config.BrokerConfig{
			MainSite:       mainSite,
			RemoteEndpoint: remote,
			RemoteToken:    config.Secret("shared-secret"),
			SyncInterval:   time.Hour,
		},
		Storage: config.StorageConfig{Kind: config.StorageKindMemory},
		Session: config.SessionConfig{Secret: config.Secret(strings.Repeat("x", 32)), MaxAge: time.Hour},
	}
}

func TestNewATweet_MainSite(t *testing.T) {
	ctx := context.Background()
	app, err := NewATweet(ctx, testConfig(true, ""))
	require.NoError(t, err)
	defer app.Close()

	token, err := app.InternalToken(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(token)
	assert.NoError(t, err)
	assert.Nil(t, app.scheduler)

	role, err := app.store.Get(ctx, storage.KeyMainWebsite)
	require.NoError(t, err)
	assert.Equal(t, "yes", role)

	status, err := app.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", status.Role)

	// No refresh token stored: no network call is made
	assert.False(t, app.Refresh(ctx))
}

func TestNewATweet_SatelliteRefreshPullsFromMain(t *testing.T) {
	ctx := context.Background()

	mainStore := storage.NewMemoryStorage()
	require.NoError(t, mainStore.UpdatePayload(ctx, storage.TokenSet{AccessToken: "AT-main", RefreshToken: "RT-main"}))
	require.NoError(t, mainStore.Set(ctx, storage.KeyInternalToken, "shared-secret"))
	mainSite := httptest.NewServer(broker.NewHandler(mainStore, true))
	defer mainSite.Close()

	app, err := NewATweet(ctx, testConfig(false, mainSite.URL))
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.scheduler)
	token, err := app.InternalToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	endpoint, err := app.store.Get(ctx, storage.KeyExternalEndpoint)
	require.NoError(t, err)
	assert.Equal(t, mainSite.URL, endpoint)

	require.True(t, app.Refresh(ctx))
	access, err := app.store.Get(ctx, storage.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "AT-main", access)

	refresh, err := storage.GetOrEmpty(ctx, app.store, storage.KeyRefreshToken)
	require.NoError(t, err)
	assert.Empty(t, refresh, "a satellite never holds the main site's refresh token")
}

func TestATweet_Reset(t *testing.T) {
	ctx := context.Background()
	app, err := NewATweet(ctx, testConfig(true, ""))
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Reset(ctx))
	for _, key := range storage.AllKeys {
		_, err := app.store.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
}

func TestATweet_PublishWithoutTokenFails(t *testing.T) {
	calls := 0
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	cfg := testConfig(true, "")
	cfg.Twitter.APIBaseURL = api.URL
	app, err := NewATweet(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	_, ok := app.Publish(context.Background(), "hello")
	assert.False(t, ok)
	assert.Equal(t, 0, calls)
}

type closeRecorder struct {
	*storage.MemoryStorage
	closed atomic.Bool
}

func (c *closeRecorder) Close() error {
	c.closed.Store(true)
	return c.MemoryStorage.Close()
}

type countingSyncer struct{ calls atomic.Int32 }

func (c *countingSyncer) Fetch(context.Context) bool {
	c.calls.Add(1)
	return true
}

func TestShutdown_ContinuesAfterServerStopFails(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	httpServer := server.NewHTTPServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}), "127.0.0.1:0")
	go func() { _ = httpServer.Start() }()
	require.Eventually(t, func() bool { return httpServer.Addr() != "127.0.0.1:0" }, time.Second, 5*time.Millisecond)

	go func() {
		resp, err := http.Get("http://" + httpServer.Addr() + "/")
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	syncer := &countingSyncer{}
	scheduler := broker.NewScheduler(syncer, time.Hour)
	scheduler.Start(context.Background())
	require.Eventually(t, func() bool { return syncer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	store := &closeRecorder{MemoryStorage: storage.NewMemoryStorage()}
	app := &ATweet{
		config:     testConfig(false, "http://main.example"),
		store:      store,
		httpServer: httpServer,
		scheduler:  scheduler,
	}

	// An expired deadline with a request in flight makes the server stop fail
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := app.shutdown(ctx, "test")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, store.closed.Load(), "storage must be closed after a failed server stop")
	assert.Panics(t, scheduler.Stop, "scheduler was already stopped")
}
