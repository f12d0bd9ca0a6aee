package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgellow/atweet/internal/log"
)

// resolveString parses an optional string-or-reference field into dst
func resolveString(raw json.RawMessage, name string, dst *string) error {
	if raw == nil {
		return nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = value
	return nil
}

// resolveDuration parses an optional duration string into dst
func resolveDuration(raw string, name string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = d
	return nil
}

// UnmarshalJSON implements custom unmarshaling for SiteConfig
func (s *SiteConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BaseURL json.RawMessage `json:"baseURL"`
		Addr    json.RawMessage `json:"addr"`
		Name    string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Name = raw.Name
	if err := resolveString(raw.BaseURL, "baseURL", &s.BaseURL); err != nil {
		return err
	}
	return resolveString(raw.Addr, "addr", &s.Addr)
}

// UnmarshalJSON implements custom unmarshaling for TwitterConfig
func (t *TwitterConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ClientID           json.RawMessage `json:"clientId"`
		Scopes             []string        `json:"scopes"`
		APIBaseURL         string          `json:"apiBaseURL"`
		AuthorizeURL       string          `json:"authorizeURL"`
		Timeout            string          `json:"timeout"`
		InsecureSkipVerify bool            `json:"insecureSkipVerify"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := resolveString(raw.ClientID, "clientId", &t.ClientID); err != nil {
		return err
	}

	t.Scopes = raw.Scopes
	t.APIBaseURL = raw.APIBaseURL
	t.AuthorizeURL = raw.AuthorizeURL
	t.InsecureSkipVerify = raw.InsecureSkipVerify

	return resolveDuration(raw.Timeout, "timeout", &t.Timeout)
}

// UnmarshalJSON implements custom unmarshaling for BrokerConfig
func (b *BrokerConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		MainSite       bool            `json:"mainSite"`
		RemoteEndpoint json.RawMessage `json:"remoteEndpoint"`
		RemoteToken    json.RawMessage `json:"remoteToken"`
		SyncInterval   string          `json:"syncInterval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.MainSite = raw.MainSite
	if err := resolveString(raw.RemoteEndpoint, "remoteEndpoint", &b.RemoteEndpoint); err != nil {
		return err
	}

	var token string
	if err := resolveString(raw.RemoteToken, "remoteToken", &token); err != nil {
		return err
	}
	b.RemoteToken = Secret(token)

	if err := resolveDuration(raw.SyncInterval, "syncInterval", &b.SyncInterval); err != nil {
		return err
	}

	log.LogTraceWithFields("config", "Parsed broker config", map[string]any{
		"main_site": b.MainSite,
		"endpoint":  b.RemoteEndpoint,
	})
	return nil
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind                StorageKind     `json:"kind"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	return resolveString(raw.GCPProject, "gcpProject", &s.GCPProject)
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Secret json.RawMessage `json:"secret"`
		MaxAge string          `json:"maxAge"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var secret string
	if err := resolveString(raw.Secret, "secret", &secret); err != nil {
		return err
	}
	s.Secret = Secret(secret)

	return resolveDuration(raw.MaxAge, "maxAge", &s.MaxAge)
}
