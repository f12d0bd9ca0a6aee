// Package session keeps the per-browser CSRF state and PKCE challenge in a
// signed and encrypted cookie.
package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/atweet/internal/crypto"
	"github.com/dgellow/atweet/internal/envutil"
	"github.com/dgellow/atweet/internal/log"
	"github.com/gorilla/sessions"
)

// CookieName is the name of the session cookie
const CookieName = "atweet_session"

const (
	stateKey     = "twitter_state"
	challengeKey = "twitter_challenge"
)

// CSRF is the pair bound to one browser session: State is echoed back by the
// provider on callback, Challenge doubles as the PKCE verifier (method plain).
type CSRF struct {
	State     string
	Challenge string
}

// Valid reports whether both values are set
func (c CSRF) Valid() bool {
	return c.State != "" && c.Challenge != ""
}

// NewCSRF returns a fresh random pair
func NewCSRF() (CSRF, error) {
	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return CSRF{}, fmt.Errorf("generating state: %w", err)
	}
	challenge, err := crypto.GenerateSecureToken()
	if err != nil {
		return CSRF{}, fmt.Errorf("generating challenge: %w", err)
	}
	return CSRF{State: state, Challenge: challenge}, nil
}

// Store reads and writes the CSRF pair in the session cookie
type Store struct {
	cookies sessions.Store
}

// NewStore creates a cookie-backed store. secret signs the cookie and a key
// derived from it encrypts the values.
func NewStore(secret []byte, maxAge time.Duration) *Store {
	cs := sessions.NewCookieStore(
		crypto.DeriveKey(secret, "session-hash"),
		crypto.DeriveKey(secret, "session-block"),
	)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	}
	// Options alone leave the codecs at the 30-day default
	cs.MaxAge(int(maxAge.Seconds()))
	return &Store{cookies: cs}
}

// CSRF returns the pair stored in the request's session, creating and saving
// a new one when absent. The pair is not rotated once created.
func (s *Store) CSRF(w http.ResponseWriter, r *http.Request) (CSRF, error) {
	sess, err := s.cookies.Get(r, CookieName)
	if err != nil {
		// Undecodable cookie, e.g. after a secret change. Get still returns a new session.
		log.LogDebugWithFields("session", "Discarding unreadable session cookie", map[string]any{
			"error": err.Error(),
		})
	}

	csrf := CSRF{}
	csrf.State, _ = sess.Values[stateKey].(string)
	csrf.Challenge, _ = sess.Values[challengeKey].(string)
	if csrf.Valid() {
		return csrf, nil
	}

	csrf, err = NewCSRF()
	if err != nil {
		return CSRF{}, err
	}
	sess.Values[stateKey] = csrf.State
	sess.Values[challengeKey] = csrf.Challenge
	if err := sess.Save(r, w); err != nil {
		return CSRF{}, fmt.Errorf("saving session: %w", err)
	}

	log.LogTraceWithFields("session", "Created CSRF pair", map[string]any{
		"secure": !envutil.IsDev(),
	})
	return csrf, nil
}
