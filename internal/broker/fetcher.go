package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Fetcher pulls the access token from the main site and stores it locally.
// It never touches the local refresh token.
type Fetcher struct {
	endpoint string
	store    storage.CredentialStore
	client   *http.Client
	group    singleflight.Group
}

// NewFetcher creates a fetcher for the main site at endpoint (its base URL)
// authenticating with remoteToken. A nil client gets one with timeout; the
// bearer is added by an oauth2 transport layered over the client's own.
func NewFetcher(endpoint, remoteToken string, store storage.CredentialStore, client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: remoteToken,
		TokenType:   "Bearer",
	}))
	authed.Timeout = client.Timeout
	return &Fetcher{
		endpoint: strings.TrimRight(endpoint, "/"),
		store:    store,
		client:   authed,
	}
}

// Fetch reports whether the local access token was replaced with the main
// site's. Overlapping calls share one request.
func (f *Fetcher) Fetch(ctx context.Context) bool {
	v, _, shared := f.group.Do("access", func() (any, error) {
		return f.fetch(ctx), nil
	})
	if shared {
		log.LogTraceWithFields("broker", "Joined in-flight remote fetch", nil)
	}
	return v.(bool)
}

func (f *Fetcher) fetch(ctx context.Context) bool {
	log.LogInfoWithFields("broker", "Remote access token requested", map[string]any{
		"endpoint": f.endpoint,
	})

	access, err := f.request(ctx)
	if err != nil {
		remoteFetches.WithLabelValues("failed").Inc()
		log.LogErrorWithFields("broker", "Remote access token fetch failed", map[string]any{
			"endpoint": f.endpoint,
			"error":    err.Error(),
		})
		return false
	}

	if err := f.store.Set(ctx, storage.KeyAccessToken, access); err != nil {
		remoteFetches.WithLabelValues("failed").Inc()
		log.LogErrorWithFields("broker", "Failed to store remote access token", map[string]any{
			"error": err.Error(),
		})
		return false
	}

	remoteFetches.WithLabelValues("ok").Inc()
	return true
}

func (f *Fetcher) request(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+AccessPath, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrPermissionDenied
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var ar AccessResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if ar.Access == "" {
		return "", fmt.Errorf("main site has no access token")
	}
	return ar.Access, nil
}
