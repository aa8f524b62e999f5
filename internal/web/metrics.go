package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nimbus",
		Subsystem: "web",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route and status code.",
	}, []string{"route", "code"})

	reportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nimbus",
		Subsystem: "report",
		Name:      "generation_seconds",
		Help:      "Wall time spent generating activity reports.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nimbus",
		Subsystem: "report",
		Name:      "generations_total",
		Help:      "Activity report runs, by outcome.",
	}, []string{"outcome"})
)
