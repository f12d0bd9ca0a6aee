package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the credential store backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// Defaults applied when the config leaves a field unset
const (
	DefaultAPIBaseURL          = "https://api.twitter.com"
	DefaultAuthorizeURL        = "https://twitter.com/i/oauth2/authorize"
	DefaultTimeout             = 10 * time.Second
	DefaultSyncInterval        = 30 * time.Minute
	DefaultSessionMaxAge       = 24 * time.Hour
	DefaultFirestoreDatabase   = "(default)"
	DefaultFirestoreCollection = "atweet_options"
)

// DefaultScopes are requested when twitter.scopes is empty
var DefaultScopes = []string{
	"tweet.read",
	"tweet.write",
	"users.read",
	"offline.access",
}

// SiteConfig describes this deployment
type SiteConfig struct {
	BaseURL string `json:"baseURL"` // also the redirect base URL
	Addr    string `json:"addr"`
	Name    string `json:"name"`
}

// TwitterConfig holds the OAuth client registration and API endpoints
type TwitterConfig struct {
	ClientID           string        `json:"clientId"`
	Scopes             []string      `json:"scopes"`
	APIBaseURL         string        `json:"apiBaseURL"`
	AuthorizeURL       string        `json:"authorizeURL"`
	Timeout            time.Duration `json:"timeout"`
	InsecureSkipVerify bool          `json:"insecureSkipVerify,omitempty"` // honoured in dev mode only
}

// BrokerConfig selects the main or satellite role.
//
// A main site owns the provider-issued refresh token and serves
// /internal/v1/access. A satellite pulls a copy of the access token from
// RemoteEndpoint using RemoteToken as its bearer credential.
type BrokerConfig struct {
	MainSite       bool          `json:"mainSite"`
	RemoteEndpoint string        `json:"remoteEndpoint,omitempty"`
	RemoteToken    Secret        `json:"remoteToken,omitempty"`
	SyncInterval   time.Duration `json:"syncInterval"`
}

// StorageConfig selects where credentials are persisted
type StorageConfig struct {
	Kind                StorageKind `json:"kind"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
}

// SessionConfig configures the browser session cookie holding CSRF state
type SessionConfig struct {
	Secret Secret        `json:"secret"`
	MaxAge time.Duration `json:"maxAge"`
}

// Config represents the config structure with resolved values
type Config struct {
	Site    SiteConfig    `json:"site"`
	Twitter TwitterConfig `json:"twitter"`
	Broker  BrokerConfig  `json:"broker"`
	Storage StorageConfig `json:"storage"`
	Session SessionConfig `json:"session"`
}

// ParseConfigValue parses a JSON value that could be a string or {"$env": "VAR"} reference
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	if envVar, ok := ref["$env"]; ok {
		value := os.Getenv(envVar)
		if value == "" {
			return "", fmt.Errorf("environment variable %s not set", envVar)
		}
		// Strip surrounding quotes if present (only matching pairs)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		return value, nil
	}

	return "", fmt.Errorf("unknown reference type in config value")
}
