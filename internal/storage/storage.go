package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an option has never been set or was deleted
var ErrNotFound = errors.New("option not found")

// Persisted option keys
const (
	KeyAccessToken      = "twitter-access-token"
	KeyRefreshToken     = "twitter-refresh-token"
	KeyAccountID        = "twitter-account-id"
	KeyAccountName      = "twitter-account-name"
	KeyAccountUsername  = "twitter-account-username"
	KeyInternalToken    = "twitter-internal-token"
	KeyExternalToken    = "twitter-external-token"
	KeyExternalEndpoint = "twitter-external-endpoint"
	KeyMainWebsite      = "twitter-main-website"
)

// AllKeys lists every option key written by atweet, in the order Reset removes them
var AllKeys = []string{
	KeyAccessToken,
	KeyRefreshToken,
	KeyAccountID,
	KeyAccountName,
	KeyAccountUsername,
	KeyInternalToken,
	KeyExternalToken,
	KeyExternalEndpoint,
	KeyMainWebsite,
}

// TokenSet is the provider credential plus the account it belongs to.
// AccessToken and RefreshToken always come from the same provider response.
type TokenSet struct {
	AccessToken     string `json:"access_token" firestore:"access_token"`
	RefreshToken    string `json:"refresh_token" firestore:"refresh_token"`
	AccountID       string `json:"account_id" firestore:"account_id"`
	AccountName     string `json:"account_name" firestore:"account_name"`
	AccountUsername string `json:"account_username" firestore:"account_username"`
}

// values maps the set onto its option keys
func (t TokenSet) values() map[string]string {
	return map[string]string{
		KeyAccessToken:     t.AccessToken,
		KeyRefreshToken:    t.RefreshToken,
		KeyAccountID:       t.AccountID,
		KeyAccountName:     t.AccountName,
		KeyAccountUsername: t.AccountUsername,
	}
}

// tokenSetFrom builds a TokenSet from option values, missing keys read as empty
func tokenSetFrom(get func(key string) string) TokenSet {
	return TokenSet{
		AccessToken:     get(KeyAccessToken),
		RefreshToken:    get(KeyRefreshToken),
		AccountID:       get(KeyAccountID),
		AccountName:     get(KeyAccountName),
		AccountUsername: get(KeyAccountUsername),
	}
}

// CredentialStore persists named string options with process-wide durability.
type CredentialStore interface {
	// Get returns ErrNotFound when the key is unset
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// UpdatePayload writes all five TokenSet fields in one atomic operation
	UpdatePayload(ctx context.Context, tokens TokenSet) error
	// TokenSet reads the stored TokenSet; unset fields are empty
	TokenSet(ctx context.Context) (TokenSet, error)

	// Reset removes every option owned by atweet
	Reset(ctx context.Context) error
	Close() error
}

// GetOrEmpty returns the option value, treating ErrNotFound as empty
func GetOrEmpty(ctx context.Context, store CredentialStore, key string) (string, error) {
	value, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}
