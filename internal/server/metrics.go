package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atweet_http_requests_total",
	Help: "HTTP requests served, by route and status code",
}, []string{"route", "method", "status"})

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "atweet_http_request_duration_seconds",
	Help:    "HTTP request latency by route",
	Buckets: prometheus.DefBuckets,
}, []string{"route"})
