package internal

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/atweet/internal/broker"
	"github.com/dgellow/atweet/internal/config"
	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/server"
	"github.com/dgellow/atweet/internal/session"
	"github.com/dgellow/atweet/internal/storage"
	"github.com/dgellow/atweet/internal/twitter"
)

// ATweet represents the complete application: one deployment, main or satellite
type ATweet struct {
	config     config.Config
	store      storage.CredentialStore
	provider   *twitter.Provider
	httpServer *server.HTTPServer
	scheduler  *broker.Scheduler
}

// NewATweet creates the application with all dependencies built
func NewATweet(ctx context.Context, cfg config.Config) (*ATweet, error) {
	log.LogInfoWithFields("atweet", "Building application", map[string]any{
		"baseURL":   cfg.Site.BaseURL,
		"main_site": cfg.Broker.MainSite,
		"storage":   string(cfg.Storage.Kind),
	})

	if _, err := url.Parse(cfg.Site.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	provider, scheduler, err := setupProvider(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup provider: %w", err)
	}

	handler := server.NewRouter(server.Dependencies{
		Provider: provider,
		Sessions: session.NewStore([]byte(cfg.Session.Secret), cfg.Session.MaxAge),
		Store:    store,
		MainSite: cfg.Broker.MainSite,
	})

	return &ATweet{
		config:     cfg,
		store:      store,
		provider:   provider,
		httpServer: server.NewHTTPServer(handler, cfg.Site.Addr),
		scheduler:  scheduler,
	}, nil
}

// Run starts the HTTP server and, on a satellite, the token sync. It blocks
// until a signal or a server error, then shuts down gracefully.
func (a *ATweet) Run() error {
	log.LogInfoWithFields("atweet", "Starting application", map[string]any{
		"addr": a.config.Site.Addr,
		"role": roleName(a.config.Broker.MainSite),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := a.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("atweet", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("atweet", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return a.shutdown(shutdownCtx, shutdownReason)
}

// shutdown stops the server, then the sync loop, then storage. Every step
// runs even when an earlier one fails; the server error is returned.
func (a *ATweet) shutdown(ctx context.Context, reason string) error {
	log.LogInfoWithFields("atweet", "Starting graceful shutdown", map[string]any{
		"reason": reason,
	})

	stopErr := a.httpServer.Stop(ctx)
	if stopErr != nil {
		log.LogErrorWithFields("atweet", "HTTP server shutdown error", map[string]any{
			"error": stopErr.Error(),
		})
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if err := a.store.Close(); err != nil {
		log.LogWarnWithFields("atweet", "Failed to close storage", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("atweet", "Application shutdown complete", map[string]any{
		"reason": reason,
	})
	return stopErr
}

// Refresh renews the stored access token once, from the provider on the
// main site or from the main site on a satellite
func (a *ATweet) Refresh(ctx context.Context) bool {
	return a.provider.NewClient().RefreshToken(ctx)
}

// Publish posts text with the stored credential
func (a *ATweet) Publish(ctx context.Context, text string) (*twitter.PublishResult, bool) {
	return a.provider.NewClient().Publish(ctx, text)
}

// Status reports the stored credential state
func (a *ATweet) Status(ctx context.Context) (twitter.Status, error) {
	return a.provider.State(ctx)
}

// InternalToken returns the token satellites must present; empty on a satellite
func (a *ATweet) InternalToken(ctx context.Context) (string, error) {
	if !a.config.Broker.MainSite {
		return "", nil
	}
	return storage.GetOrEmpty(ctx, a.store, storage.KeyInternalToken)
}

// Reset deletes every persisted option
func (a *ATweet) Reset(ctx context.Context) error {
	log.LogWarnWithFields("atweet", "Removing all stored options", nil)
	return a.store.Reset(ctx)
}

// Close releases the storage backend
func (a *ATweet) Close() error {
	return a.store.Close()
}

// setupStorage creates the credential store selected by storage.kind
func setupStorage(ctx context.Context, cfg config.Config) (storage.CredentialStore, error) {
	if cfg.Storage.Kind == config.StorageKindFirestore {
		firestoreStorage, err := storage.NewFirestoreStorage(
			ctx,
			cfg.Storage.GCPProject,
			cfg.Storage.FirestoreDatabase,
			cfg.Storage.FirestoreCollection,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStorage(), nil
}

// setupProvider builds the provider for the configured role. The main site
// gets its internal token; a satellite gets a fetcher and its scheduler.
func setupProvider(ctx context.Context, cfg config.Config, store storage.CredentialStore) (*twitter.Provider, *broker.Scheduler, error) {
	pcfg := twitter.ProviderConfigFromConfig(cfg)

	var scheduler *broker.Scheduler
	if cfg.Broker.MainSite {
		if _, err := broker.EnsureInternalToken(ctx, store); err != nil {
			return nil, nil, err
		}
		log.LogInfoWithFields("atweet", "Internal token available for satellites", nil)
	} else {
		fetcher := broker.NewFetcher(cfg.Broker.RemoteEndpoint, string(cfg.Broker.RemoteToken), store, nil, cfg.Twitter.Timeout)
		pcfg.Remote = fetcher
		scheduler = broker.NewScheduler(fetcher, cfg.Broker.SyncInterval)
	}

	if err := broker.RecordRole(ctx, store, cfg.Broker.MainSite, cfg.Broker.RemoteEndpoint, string(cfg.Broker.RemoteToken)); err != nil {
		return nil, nil, fmt.Errorf("recording role: %w", err)
	}

	provider, err := twitter.NewProvider(pcfg, store)
	if err != nil {
		return nil, nil, err
	}
	return provider, scheduler, nil
}

func roleName(mainSite bool) string {
	if mainSite {
		return "main"
	}
	return "satellite"
}
