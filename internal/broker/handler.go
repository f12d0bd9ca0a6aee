package broker

import (
	"context"
	"errors"
	"net/http"

	"github.com/dgellow/atweet/internal/crypto"
	jsonwriter "github.com/dgellow/atweet/internal/json"
	"github.com/dgellow/atweet/internal/log"
	"github.com/dgellow/atweet/internal/storage"
)

// Handler serves AccessPath
type Handler struct {
	store    storage.CredentialStore
	mainSite bool
}

// NewHandler creates the internal endpoint handler. On a satellite every
// request is denied.
func NewHandler(store storage.CredentialStore, mainSite bool) *Handler {
	return &Handler{store: store, mainSite: mainSite}
}

// Authorize checks the three conditions for reading the access token: this
// is the main site, a bearer token is present and it equals the stored
// internal token
func (h *Handler) Authorize(ctx context.Context, header http.Header) error {
	if !h.mainSite {
		return ErrPermissionDenied
	}
	presented := BearerToken(header)
	if presented == "" {
		return ErrPermissionDenied
	}
	internal, err := storage.GetOrEmpty(ctx, h.store, storage.KeyInternalToken)
	if err != nil {
		return err
	}
	if !crypto.Equal(presented, internal) {
		return ErrPermissionDenied
	}
	return nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Authorize(ctx, r.Header); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			accessRequests.WithLabelValues("denied").Inc()
			log.LogWarnWithFields("broker", "Internal access denied", map[string]any{
				"remote":    r.RemoteAddr,
				"main_site": h.mainSite,
			})
			jsonwriter.WriteUnauthorized(w, "atweet-internal", "permission denied")
			return
		}
		accessRequests.WithLabelValues("error").Inc()
		log.LogErrorWithFields("broker", "Failed to authorize internal access", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "credential store unavailable")
		return
	}

	access, err := storage.GetOrEmpty(ctx, h.store, storage.KeyAccessToken)
	if err != nil {
		accessRequests.WithLabelValues("error").Inc()
		log.LogErrorWithFields("broker", "Failed to read access token", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "credential store unavailable")
		return
	}

	accessRequests.WithLabelValues("granted").Inc()
	log.LogDebugWithFields("broker", "Internal access granted", map[string]any{
		"remote": r.RemoteAddr,
	})
	_ = jsonwriter.Write(w, AccessResponse{Access: access})
}
