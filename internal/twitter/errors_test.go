package twitter

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestTransportError(t *testing.T) {
	expired := newStatusError("publish", http.StatusUnauthorized, []byte(`{"title":"Unauthorized"}`))
	assert.ErrorIs(t, expired, ErrAuthExpired)
	assert.Equal(t, `twitter: publish: status 401: {"title":"Unauthorized"}`, expired.Error())

	forbidden := newStatusError("publish", http.StatusForbidden, nil)
	assert.NotErrorIs(t, forbidden, ErrAuthExpired)
	assert.Equal(t, "twitter: publish: status 403", forbidden.Error())

	dial := &TransportError{Op: "fetch user", Err: errors.New("connection refused")}
	assert.Equal(t, "twitter: fetch user: connection refused", dial.Error())

	long := newStatusError("publish", http.StatusBadRequest, []byte(strings.Repeat("x", 600)))
	assert.Len(t, long.Body, 515)
}

func TestOAuthTransportError(t *testing.T) {
	re := &oauth2.RetrieveError{
		Response: &http.Response{StatusCode: http.StatusUnauthorized},
		Body:     []byte(`{"error":"unauthorized_client"}`),
	}
	te := oauthTransportError("refresh token", re)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.ErrorIs(t, te, ErrAuthExpired)
	assert.Contains(t, te.Body, "unauthorized_client")

	plain := oauthTransportError("exchange code", errors.New("dial tcp: timeout"))
	assert.Zero(t, plain.StatusCode)
	assert.NotErrorIs(t, plain, ErrAuthExpired)
}
