package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dgellow/atweet/internal/crypto"
	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/session"
	"github.com/dgellow/atweet/internal/storage"
	"golang.org/x/oauth2"
)

// StatusPath is where the browser lands after a satellite authenticate
const StatusPath = "/twitter/"

// maxRefreshes bounds refresh attempts per Client
const maxRefreshes = 1

// CSRFStore yields the CSRF pair of the requesting browser
type CSRFStore interface {
	CSRF(w http.ResponseWriter, r *http.Request) (session.CSRF, error)
}

// Client performs one logical operation (a request, a CLI command) against
// the provider. It is not safe for concurrent use; create one per operation
// with Provider.NewClient.
type Client struct {
	provider *Provider
	retry    int
}

// CallbackOutcome is the terminal state of HandleCallback
type CallbackOutcome string

const (
	CallbackSuccess CallbackOutcome = "success"
	CallbackDenied  CallbackOutcome = "denied"
	CallbackInvalid CallbackOutcome = "invalid"
	CallbackFailed  CallbackOutcome = "failed"
)

// AuthorizationURL builds the provider consent URL for csrf
func (c *Client) AuthorizationURL(csrf session.CSRF) string {
	return c.provider.oauth.AuthCodeURL(csrf.State,
		oauth2.SetAuthURLParam("code_challenge", csrf.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "plain"),
	)
}

// Authenticate starts the flow for the requesting browser.
//
// On the main site the browser is redirected to the provider. On a
// satellite the access token is pulled from the main site, the account
// metadata refreshed from the provider, and the browser sent to StatusPath.
// The returned error is informational; a response is always written.
func (c *Client) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, csrfs CSRFStore) error {
	if c.provider.MainSite() {
		csrf, err := csrfs.CSRF(w, r)
		if err != nil {
			log.LogErrorWithFields("twitter", "Failed to prepare session", map[string]any{
				"error": err.Error(),
			})
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return err
		}
		log.LogInfoWithFields("twitter", "Redirecting to provider for consent", map[string]any{
			"redirect": c.provider.RedirectURL(),
		})
		http.Redirect(w, r, c.AuthorizationURL(csrf), http.StatusFound)
		return nil
	}

	err := c.authenticateRemote(ctx)
	http.Redirect(w, r, StatusPath, http.StatusFound)
	return err
}

// authenticateRemote pulls the shared token and records whose account it is
func (c *Client) authenticateRemote(ctx context.Context) error {
	if !c.provider.cfg.Remote.Fetch(ctx) {
		return fmt.Errorf("twitter: remote access token unavailable")
	}

	access, err := storage.GetOrEmpty(ctx, c.provider.store, storage.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("reading access token: %w", err)
	}

	user, err := c.provider.FetchUser(ctx, access)
	if err != nil {
		log.LogWarnWithFields("twitter", "Failed to fetch account for remote token", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	return c.provider.updateAccount(ctx, user)
}

// HandleCallback validates the provider redirect and, when valid, exchanges
// the code and persists the resulting TokenSet.
func (c *Client) HandleCallback(ctx context.Context, params url.Values, csrf session.CSRF) (CallbackOutcome, error) {
	state, code := params.Get("state"), params.Get("code")

	if state != "" && code != "" && crypto.Equal(state, csrf.State) {
		if err := c.exchange(ctx, code, csrf.Challenge); err != nil {
			log.LogErrorWithFields("twitter", "Callback did not complete", map[string]any{
				"error": err.Error(),
			})
			callbacksHandled.WithLabelValues(string(CallbackFailed)).Inc()
			return CallbackFailed, err
		}
		log.LogInfoWithFields("twitter", "Callback completed", nil)
		callbacksHandled.WithLabelValues(string(CallbackSuccess)).Inc()
		return CallbackSuccess, nil
	}

	if params.Get("error") == "access_denied" {
		log.LogWarnWithFields("twitter", "Access denied (canceled)", nil)
		callbacksHandled.WithLabelValues(string(CallbackDenied)).Inc()
		return CallbackDenied, ErrAccessDenied
	}

	callbacksHandled.WithLabelValues(string(CallbackInvalid)).Inc()
	if state != "" && code != "" {
		log.LogWarnWithFields("twitter", "Invalid callback (state mismatch)", nil)
		return CallbackInvalid, ErrCSRFMismatch
	}
	log.LogWarnWithFields("twitter", "Invalid callback (parameters)", map[string]any{
		"has_state": state != "",
		"has_code":  code != "",
		"error":     params.Get("error"),
	})
	return CallbackInvalid, ErrInvalidCallback
}

func (c *Client) exchange(ctx context.Context, code, verifier string) error {
	tok, err := c.provider.oauth.Exchange(c.provider.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return oauthTransportError("exchange code", err)
	}
	return c.provider.persist(ctx, tok)
}

// RefreshToken renews the stored access token. It runs at most once per
// Client; later calls return false without any network activity. A
// satellite pulls the token from the main site instead of calling the
// provider.
func (c *Client) RefreshToken(ctx context.Context) bool {
	if c.retry >= maxRefreshes {
		log.LogDebugWithFields("twitter", "Refresh already attempted for this operation", nil)
		return false
	}
	c.retry++

	role := c.provider.role()
	log.LogInfoWithFields("twitter", "Refresh token requested", map[string]any{
		"role": role,
	})

	var ok bool
	if c.provider.MainSite() {
		ok = c.refreshFromProvider(ctx)
	} else {
		ok = c.provider.cfg.Remote.Fetch(ctx)
	}

	result := "ok"
	if !ok {
		result = "failed"
	}
	refreshAttempts.WithLabelValues(role, result).Inc()
	return ok
}

func (c *Client) refreshFromProvider(ctx context.Context) bool {
	refresh, err := storage.GetOrEmpty(ctx, c.provider.store, storage.KeyRefreshToken)
	if err != nil {
		log.LogErrorWithFields("twitter", "Failed to read refresh token", map[string]any{
			"error": err.Error(),
		})
		return false
	}
	if refresh == "" {
		log.LogWarnWithFields("twitter", "Refresh skipped", map[string]any{
			"error": ErrNoRefreshToken.Error(),
		})
		return false
	}

	src := c.provider.oauth.TokenSource(c.provider.oauthContext(ctx), &oauth2.Token{RefreshToken: refresh})
	tok, err := src.Token()
	if err != nil {
		log.LogErrorWithFields("twitter", "Failed to refresh token", map[string]any{
			"error": oauthTransportError("refresh token", err).Error(),
		})
		return false
	}

	if err := c.provider.persist(ctx, tok); err != nil {
		log.LogErrorWithFields("twitter", "Failed to store refreshed token", map[string]any{
			"error": err.Error(),
		})
		return false
	}
	log.LogInfoWithFields("twitter", "Token refreshed", map[string]any{
		"rotated": tok.RefreshToken != refresh,
	})
	return true
}

// persist fetches the account for tok and writes the whole TokenSet. A failed
// profile fetch still stores the tokens, with empty account fields.
func (p *Provider) persist(ctx context.Context, tok *oauth2.Token) error {
	tokens := storage.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	user, err := p.FetchUser(ctx, tok.AccessToken)
	if err != nil {
		log.LogWarnWithFields("twitter", "Failed to fetch account, storing tokens without it", map[string]any{
			"error": err.Error(),
		})
	} else {
		tokens.AccountID = user.ID
		tokens.AccountName = user.Name
		tokens.AccountUsername = user.Username
	}

	if err := p.store.UpdatePayload(ctx, tokens); err != nil {
		return fmt.Errorf("storing token set: %w", err)
	}
	return nil
}

func (p *Provider) updateAccount(ctx context.Context, user *User) error {
	for key, value := range map[string]string{
		storage.KeyAccountID:       user.ID,
		storage.KeyAccountName:     user.Name,
		storage.KeyAccountUsername: user.Username,
	} {
		if err := p.store.Set(ctx, key, value); err != nil {
			return fmt.Errorf("storing %s: %w", key, err)
		}
	}
	return nil
}

// oauthTransportError converts golang.org/x/oauth2 errors into TransportError
func oauthTransportError(op string, err error) *TransportError {
	te := &TransportError{Op: op, Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		te.StatusCode = re.Response.StatusCode
		te.Body = truncate(string(re.Body), 512)
		if te.StatusCode == http.StatusUnauthorized {
			te.Err = fmt.Errorf("%w: %v", ErrAuthExpired, err)
		}
	}
	return te
}
