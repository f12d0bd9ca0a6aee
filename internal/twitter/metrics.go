package twitter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var callbacksHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atweet_callbacks_total",
	Help: "OAuth callbacks handled, by outcome",
}, []string{"outcome"})

var refreshAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atweet_refresh_attempts_total",
	Help: "Token refresh attempts, by role and result",
}, []string{"role", "result"})

var publishes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atweet_publishes_total",
	Help: "Publish operations, by result",
}, []string{"result"})

var providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "atweet_provider_request_duration_seconds",
	Help:    "Duration of outbound provider API calls",
	Buckets: prometheus.DefBuckets,
}, []string{"op", "status"})
