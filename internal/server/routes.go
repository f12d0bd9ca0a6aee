package server

import (
	"net/http"

	"github.com/dgellow/atweet/internal/broker"
	"github.com/dgellow/atweet/internal/storage"
	"github.com/dgellow/atweet/internal/twitter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes served by NewRouter
const (
	AuthenticatePath = "/twitter/authenticate/"
	PublishPath      = "/twitter/tweet/"
	HealthPath       = "/health"
	MetricsPath      = "/metrics"
)

// Dependencies are the components the router serves
type Dependencies struct {
	Provider *twitter.Provider
	Sessions twitter.CSRFStore
	Store    storage.CredentialStore
	MainSite bool
}

// NewRouter builds the complete HTTP handler.
//
// Publishing requires a bearer token: the internal token on the main site,
// the shared remote token on a satellite.
func NewRouter(deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	handlers := NewTwitterHandlers(deps.Provider, deps.Sessions)

	route := func(name string, h http.Handler, extra ...MiddlewareFunc) http.Handler {
		mws := append(append([]MiddlewareFunc{}, extra...),
			NewLoggerMiddleware(name),
			NewMetricsMiddleware(name),
			NewRecoverMiddleware(name),
		)
		return ChainMiddleware(h, mws...)
	}

	publishKey := storage.KeyInternalToken
	if !deps.MainSite {
		publishKey = storage.KeyExternalToken
	}

	mux.Handle("GET "+HealthPath, NewHealthHandler())
	mux.Handle("GET "+MetricsPath, promhttp.Handler())

	mux.Handle("GET "+twitter.StatusPath+"{$}", route("status", http.HandlerFunc(handlers.StatusHandler)))
	mux.Handle("GET "+AuthenticatePath, route("authenticate", http.HandlerFunc(handlers.AuthenticateHandler)))
	mux.Handle("GET "+twitter.CallbackPath, route("callback", http.HandlerFunc(handlers.CallbackHandler)))
	mux.Handle("POST "+PublishPath, route("publish", http.HandlerFunc(handlers.PublishHandler),
		NewBearerAuthMiddleware(deps.Store, publishKey, "atweet"),
	))

	mux.Handle("GET "+broker.AccessPath, route("broker", broker.NewHandler(deps.Store, deps.MainSite)))

	return mux
}
