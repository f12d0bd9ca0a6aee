package server

import (
	"net/http"
	"strings"

	jsonwriter "github.com/dgellow/atweet/internal/json"
	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/twitter"
)

// TwitterHandlers serves the browser flow, the status page and the publish hook
type TwitterHandlers struct {
	provider *twitter.Provider
	sessions twitter.CSRFStore
}

// NewTwitterHandlers creates the handlers. Every request gets its own
// twitter.Client so refresh budgets never leak between requests.
func NewTwitterHandlers(provider *twitter.Provider, sessions twitter.CSRFStore) *TwitterHandlers {
	return &TwitterHandlers{provider: provider, sessions: sessions}
}

// AuthenticateHandler starts the authorization flow
func (h *TwitterHandlers) AuthenticateHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.NewClient().Authenticate(r.Context(), w, r, h.sessions); err != nil {
		log.LogWarnWithFields("twitter", "Authenticate did not complete", map[string]any{
			"error": err.Error(),
		})
	}
}

// CallbackHandler completes the flow on the provider redirect
func (h *TwitterHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	csrf, err := h.sessions.CSRF(w, r)
	if err != nil {
		log.LogErrorWithFields("twitter", "Failed to read session", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "session unavailable")
		return
	}

	outcome, _ := h.provider.NewClient().HandleCallback(r.Context(), r.URL.Query(), csrf)
	switch outcome {
	case twitter.CallbackSuccess:
		http.Redirect(w, r, twitter.StatusPath, http.StatusFound)
	case twitter.CallbackDenied:
		http.Redirect(w, r, twitter.StatusPath+"?error=access_denied", http.StatusFound)
	case twitter.CallbackInvalid:
		jsonwriter.WriteBadRequest(w, "invalid callback")
	default:
		jsonwriter.WriteBadGateway(w, "token exchange failed")
	}
}

type publishRequest struct {
	Text string `json:"text"`
}

type publishResponse struct {
	OK bool `json:"ok"`
	*twitter.PublishResult
}

// PublishHandler posts the text of a JSON {"text": "..."} body
func (h *TwitterHandlers) PublishHandler(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := jsonwriter.Decode(r, &req); err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonwriter.WriteBadRequest(w, "text is required")
		return
	}

	result, ok := h.provider.NewClient().Publish(r.Context(), req.Text)
	if !ok {
		jsonwriter.WriteBadGateway(w, "publish failed")
		return
	}
	_ = jsonwriter.Write(w, publishResponse{OK: true, PublishResult: result})
}

// StatusHandler reports role, state and account without exposing tokens
func (h *TwitterHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.provider.State(r.Context())
	if err != nil {
		log.LogErrorWithFields("twitter", "Failed to read status", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "credential store unavailable")
		return
	}
	_ = jsonwriter.Write(w, status)
}
