// Package broker lets satellite deployments borrow the access token owned by
// the main deployment.
//
// The main site serves GET /internal/v1/access to callers presenting the
// shared internal token as a bearer credential. Satellites call it on a
// schedule and when the provider rejects their copy of the token.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/storage"
	"github.com/google/uuid"
)

// AccessPath is the internal endpoint served by the main site
const AccessPath = "/internal/v1/access"

// ErrPermissionDenied is returned when a caller may not read the access token
var ErrPermissionDenied = errors.New("broker: permission denied")

// AccessResponse is the body of a successful AccessPath response
type AccessResponse struct {
	Access string `json:"access"`
}

// EnsureInternalToken returns the persisted internal token, generating and
// storing a random UUID the first time. An existing token is never replaced.
func EnsureInternalToken(ctx context.Context, store storage.CredentialStore) (string, error) {
	token, err := storage.GetOrEmpty(ctx, store, storage.KeyInternalToken)
	if err != nil {
		return "", fmt.Errorf("reading internal token: %w", err)
	}
	if token != "" {
		return token, nil
	}

	token = uuid.NewString()
	if err := store.Set(ctx, storage.KeyInternalToken, token); err != nil {
		return "", fmt.Errorf("storing internal token: %w", err)
	}
	log.LogInfoWithFields("broker", "Generated internal token", nil)
	return token, nil
}

// RecordRole mirrors the role settings into the credential store under the
// option keys operators already know from earlier deployments
func RecordRole(ctx context.Context, store storage.CredentialStore, mainSite bool, endpoint, remoteToken string) error {
	main := "no"
	if mainSite {
		main = "yes"
	}
	values := map[string]string{storage.KeyMainWebsite: main}
	if !mainSite {
		values[storage.KeyExternalEndpoint] = endpoint
		values[storage.KeyExternalToken] = remoteToken
	}
	for key, value := range values {
		if err := store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("storing %s: %w", key, err)
		}
	}
	return nil
}

var bearerPattern = regexp.MustCompile(`Bearer\s(\S+)`)

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header; the header name is matched case-insensitively
func BearerToken(h http.Header) string {
	m := bearerPattern.FindStringSubmatch(h.Get("Authorization"))
	if m == nil {
		return ""
	}
	return m[1]
}
