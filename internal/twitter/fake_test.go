package twitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dgellow/atweet/internal/session"
	"github.com/dgellow/atweet/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI stands in for the provider. Each endpoint answers from a queue of
// responses; the last one repeats.
type fakeAPI struct {
	*httptest.Server

	tokenCalls   atomic.Int32
	profileCalls atomic.Int32
	publishCalls atomic.Int32

	mu          sync.Mutex
	tokenForms  []url.Values
	tokenResps  []fakeResponse
	profileResp fakeResponse
	publishResp []fakeResponse
	bearers     []string
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		tokenResps:  []fakeResponse{{200, `{"access_token":"AT1","refresh_token":"RT1","token_type":"bearer","expires_in":7200}`}},
		profileResp: fakeResponse{200, `{"data":{"id":"1","name":"N","username":"u"}}`},
		publishResp: []fakeResponse{{201, `{"data":{"id":"42","text":"hello https://t.co/abc123"}}`}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+TokenPath, func(w http.ResponseWriter, r *http.Request) {
		n := int(f.tokenCalls.Add(1))
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.tokenForms = append(f.tokenForms, r.PostForm)
		resp := pick(f.tokenResps, n)
		f.mu.Unlock()
		writeFake(w, resp)
	})
	mux.HandleFunc("GET "+UserPath, func(w http.ResponseWriter, r *http.Request) {
		f.profileCalls.Add(1)
		f.mu.Lock()
		f.bearers = append(f.bearers, r.Header.Get("Authorization"))
		resp := f.profileResp
		f.mu.Unlock()
		writeFake(w, resp)
	})
	mux.HandleFunc("POST "+TweetPath, func(w http.ResponseWriter, r *http.Request) {
		n := int(f.publishCalls.Add(1))
		var body struct {
			Text string `json:"text"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.bearers = append(f.bearers, r.Header.Get("Authorization"))
		resp := pick(f.publishResp, n)
		f.mu.Unlock()
		writeFake(w, resp)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) setTokenResponses(resps ...fakeResponse) {
	f.mu.Lock()
	f.tokenResps = resps
	f.mu.Unlock()
}

func (f *fakeAPI) setProfileResponse(resp fakeResponse) {
	f.mu.Lock()
	f.profileResp = resp
	f.mu.Unlock()
}

func (f *fakeAPI) setPublishResponses(resps ...fakeResponse) {
	f.mu.Lock()
	f.publishResp = resps
	f.mu.Unlock()
}

func (f *fakeAPI) seenBearers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bearers...)
}

func pick(resps []fakeResponse, n int) fakeResponse {
	if n > len(resps) {
		return resps[len(resps)-1]
	}
	return resps[n-1]
}

func writeFake(w http.ResponseWriter, resp fakeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (f *fakeAPI) lastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokenForms) == 0 {
		return nil
	}
	return f.tokenForms[len(f.tokenForms)-1]
}

func (f *fakeAPI) networkCalls() int32 {
	return f.tokenCalls.Load() + f.profileCalls.Load() + f.publishCalls.Load()
}

// fakeRemote counts broker fetches and writes a fixed access token
type fakeRemote struct {
	store  storage.CredentialStore
	access string
	ok     bool
	calls  atomic.Int32
}

func (r *fakeRemote) Fetch(ctx context.Context) bool {
	r.calls.Add(1)
	if !r.ok {
		return false
	}
	return r.store.Set(ctx, storage.KeyAccessToken, r.access) == nil
}

// fixedCSRF always returns the same pair
type fixedCSRF session.CSRF

func (f fixedCSRF) CSRF(http.ResponseWriter, *http.Request) (session.CSRF, error) {
	return session.CSRF(f), nil
}

var testCSRF = session.CSRF{State: "state-123", Challenge: "challenge-456"}

func newTestProvider(t *testing.T, api *fakeAPI, store storage.CredentialStore) *Provider {
	t.Helper()
	p, err := NewProvider(ProviderConfig{
		ClientID:        "abc",
		RedirectBaseURL: "https://site.example",
		APIBaseURL:      api.URL,
		AuthorizeURL:    "https://twitter.example/i/oauth2/authorize",
		MainSite:        true,
	}, store)
	require.NoError(t, err)
	return p
}

func seedTokens(t *testing.T, store storage.CredentialStore, access, refresh string) {
	t.Helper()
	require.NoError(t, store.UpdatePayload(context.Background(), storage.TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
	}))
}

func bearerOf(token string) string {
	return "Bearer " + strings.TrimSpace(token)
}
