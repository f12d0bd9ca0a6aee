package twitter

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by NewProvider when the client id or redirect base URL is missing
	ErrConfiguration = errors.New("twitter: invalid configuration")

	// ErrCSRFMismatch means the callback state does not match the session state
	ErrCSRFMismatch = errors.New("twitter: callback state does not match session")

	// ErrAccessDenied means the user declined consent on the provider
	ErrAccessDenied = errors.New("twitter: access denied by user")

	// ErrInvalidCallback means the callback carried neither a valid state and code nor a denial
	ErrInvalidCallback = errors.New("twitter: invalid callback parameters")

	// ErrAuthExpired is returned for a 401 from the provider API
	ErrAuthExpired = errors.New("twitter: access token expired or revoked")

	// ErrNoRefreshToken means no refresh token is stored
	ErrNoRefreshToken = errors.New("twitter: no refresh token stored")
)

// TransportError is a failed call to the provider: either the request never
// completed (StatusCode 0) or the provider answered with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("twitter: %s: %v", e.Op, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("twitter: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("twitter: %s: status %d", e.Op, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// newStatusError maps 401 to ErrAuthExpired so callers can branch with errors.Is
func newStatusError(op string, status int, body []byte) *TransportError {
	te := &TransportError{Op: op, StatusCode: status, Body: truncate(string(body), 512)}
	if status == 401 {
		te.Err = ErrAuthExpired
	}
	return te
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
