package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgellow/atweet/internal/log"
	"sigs.k8s.io/yaml"
)

// SupportedVersionPrefix is the config version accepted by Load
const SupportedVersionPrefix = "v1"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// readConfigFile returns the file contents as JSON, converting YAML files first
func readConfigFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
		return converted, nil
	}
	return data, nil
}

// Parse processes JSON config data: version check, secret policy, env resolution,
// defaults and validation.
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields must be given as {"$env": "VAR"} references, never inline
var secretFields = []struct {
	section string
	name    string
}{
	{"session", "secret"},
	{"broker", "remoteToken"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, field := range secretFields {
		section, ok := rawConfig[field.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[field.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", field.section, field.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", field.section, field.name)
			}
		}
	}
	return nil
}

// applyDefaults fills every unset field with its documented default
func applyDefaults(c *Config) {
	if c.Site.Name == "" {
		c.Site.Name = "atweet"
	}
	c.Site.BaseURL = strings.TrimRight(c.Site.BaseURL, "/")

	if len(c.Twitter.Scopes) == 0 {
		c.Twitter.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Twitter.APIBaseURL == "" {
		c.Twitter.APIBaseURL = DefaultAPIBaseURL
	}
	if c.Twitter.AuthorizeURL == "" {
		c.Twitter.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.Twitter.Timeout == 0 {
		c.Twitter.Timeout = DefaultTimeout
	}

	if c.Broker.SyncInterval == 0 {
		c.Broker.SyncInterval = DefaultSyncInterval
	}
	c.Broker.RemoteEndpoint = strings.TrimRight(c.Broker.RemoteEndpoint, "/")

	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageKindMemory
	}
	if c.Storage.Kind == StorageKindFirestore {
		if c.Storage.FirestoreDatabase == "" {
			c.Storage.FirestoreDatabase = DefaultFirestoreDatabase
		}
		if c.Storage.FirestoreCollection == "" {
			c.Storage.FirestoreCollection = DefaultFirestoreCollection
		}
	}

	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = DefaultSessionMaxAge
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Site.BaseURL == "" {
		return fmt.Errorf("site.baseURL is required")
	}
	if config.Site.Addr == "" {
		return fmt.Errorf("site.addr is required")
	}
	if config.Twitter.ClientID == "" {
		return fmt.Errorf("twitter.clientId is required")
	}
	if config.Twitter.Timeout < 0 {
		return fmt.Errorf("twitter.timeout cannot be negative")
	}
	if len(config.Session.Secret) < 32 {
		return fmt.Errorf("session.secret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.Session.Secret))
	}

	if !config.Broker.MainSite {
		if config.Broker.RemoteEndpoint == "" {
			return fmt.Errorf("broker.remoteEndpoint is required for a satellite site")
		}
		if config.Broker.RemoteToken == "" {
			return fmt.Errorf("broker.remoteToken is required for a satellite site")
		}
	} else if config.Broker.RemoteEndpoint != "" {
		log.LogWarn("broker.remoteEndpoint is ignored on the main site")
	}
	if config.Broker.SyncInterval < 0 {
		return fmt.Errorf("broker.syncInterval cannot be negative")
	}

	switch config.Storage.Kind {
	case StorageKindMemory:
	case StorageKindFirestore:
		if config.Storage.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", config.Storage.Kind)
	}

	return nil
}
