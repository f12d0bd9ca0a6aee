package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var accessRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atweet_broker_access_requests_total",
	Help: "Requests to the internal access endpoint, by result",
}, []string{"result"})

var remoteFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atweet_broker_fetches_total",
	Help: "Satellite fetches of the remote access token, by result",
}, []string{"result"})

var lastSyncSuccess = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "atweet_broker_last_sync_success_timestamp_seconds",
	Help: "Unix time of the last successful scheduled sync",
})
