// Package twitter implements the OAuth 2.0 authorization code flow with PKCE
// against the X/Twitter v2 API, plus the authenticated calls atweet makes
// with the resulting token.
package twitter

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/atweet/internal/config"
	"github.com/dgellow/atweet/internal/envutil"
	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/storage"
	"golang.org/x/oauth2"
)

// Provider API paths, relative to APIBaseURL
const (
	TokenPath = "/2/oauth2/token"
	UserPath  = "/2/users/me"
	TweetPath = "/2/tweets"

	// CallbackPath is appended to the redirect base URL
	CallbackPath = "/twitter/callback/"
)

// RemoteSource pulls a copy of the access token from the main site.
// Fetch reports whether the local access token was updated.
type RemoteSource interface {
	Fetch(ctx context.Context) bool
}

// ProviderConfig is the immutable client configuration of one deployment
type ProviderConfig struct {
	ClientID        string
	RedirectBaseURL string
	Scopes          []string

	APIBaseURL   string
	AuthorizeURL string
	Timeout      time.Duration

	// InsecureSkipVerify disables TLS verification, honoured in dev mode only
	InsecureSkipVerify bool

	// MainSite selects the role. A satellite needs Remote.
	MainSite bool
	Remote   RemoteSource

	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
}

// ProviderConfigFromConfig maps the loaded config onto a ProviderConfig
func ProviderConfigFromConfig(cfg config.Config) ProviderConfig {
	return ProviderConfig{
		ClientID:           cfg.Twitter.ClientID,
		RedirectBaseURL:    cfg.Site.BaseURL,
		Scopes:             cfg.Twitter.Scopes,
		APIBaseURL:         cfg.Twitter.APIBaseURL,
		AuthorizeURL:       cfg.Twitter.AuthorizeURL,
		Timeout:            cfg.Twitter.Timeout,
		InsecureSkipVerify: cfg.Twitter.InsecureSkipVerify,
		MainSite:           cfg.Broker.MainSite,
	}
}

// Provider holds what is shared across requests: configuration, the
// credential store and the outbound HTTP client. It carries no per-request
// state; see Client.
type Provider struct {
	cfg        ProviderConfig
	store      storage.CredentialStore
	oauth      *oauth2.Config
	httpClient *http.Client
	apiBase    string
}

// NewProvider validates cfg and builds a provider
func NewProvider(cfg ProviderConfig, store storage.CredentialStore) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrConfiguration)
	}
	if cfg.RedirectBaseURL == "" {
		return nil, fmt.Errorf("%w: redirect base URL is required", ErrConfiguration)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: credential store is required", ErrConfiguration)
	}
	if !cfg.MainSite && cfg.Remote == nil {
		return nil, fmt.Errorf("%w: a satellite site needs a remote token source", ErrConfiguration)
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = config.DefaultScopes
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = config.DefaultAPIBaseURL
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = config.DefaultAuthorizeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultTimeout
	}

	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	redirectBase := strings.TrimRight(cfg.RedirectBaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify)
	}

	return &Provider{
		cfg:   cfg,
		store: store,
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  apiBase + TokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: redirectBase + CallbackPath,
			Scopes:      cfg.Scopes,
		},
		httpClient: httpClient,
		apiBase:    apiBase,
	}, nil
}

func newHTTPClient(timeout time.Duration, insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		if envutil.IsDev() {
			log.LogWarnWithFields("twitter", "TLS verification disabled for provider calls", map[string]any{
				"mode": envutil.Mode(),
			})
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // dev mode only
		} else {
			log.LogWarn("Ignoring twitter.insecureSkipVerify outside development mode")
		}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// NewClient returns a client for one logical operation. Its refresh budget
// is independent of every other client.
func (p *Provider) NewClient() *Client {
	return &Client{provider: p}
}

// RedirectURL is the callback URL registered with the provider
func (p *Provider) RedirectURL() string {
	return p.oauth.RedirectURL
}

// MainSite reports whether this deployment owns the provider refresh token
func (p *Provider) MainSite() bool {
	return p.cfg.MainSite
}

// Store returns the credential store
func (p *Provider) Store() storage.CredentialStore {
	return p.store
}

// oauthContext carries the provider HTTP client into golang.org/x/oauth2
func (p *Provider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthState is the coarse lifecycle state of this deployment
type AuthState string

const (
	StateConfigured    AuthState = "configured"
	StateAuthenticated AuthState = "authenticated"
)

// Status describes the stored credential without exposing tokens
type Status struct {
	Role            string    `json:"role"`
	State           AuthState `json:"state"`
	AccountID       string    `json:"account_id,omitempty"`
	AccountName     string    `json:"account_name,omitempty"`
	AccountUsername string    `json:"account_username,omitempty"`
	HasRefreshToken bool      `json:"has_refresh_token"`
}

// State reports the lifecycle state derived from the stored tokens
func (p *Provider) State(ctx context.Context) (Status, error) {
	tokens, err := p.store.TokenSet(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("reading token set: %w", err)
	}

	status := Status{
		Role:            p.role(),
		State:           StateConfigured,
		AccountID:       tokens.AccountID,
		AccountName:     tokens.AccountName,
		AccountUsername: tokens.AccountUsername,
		HasRefreshToken: tokens.RefreshToken != "",
	}
	if tokens.AccessToken != "" {
		status.State = StateAuthenticated
	}
	return status, nil
}

func (p *Provider) role() string {
	if p.cfg.MainSite {
		return "main"
	}
	return "satellite"
}
