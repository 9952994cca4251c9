// internal/telemetry/metrics.go
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var LoansIssued = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "libracirc",
	Subsystem: "circulation",
	Name:      "loans_issued_total",
	Help:      "Total loans issued.",
})

var LoansReturned = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "libracirc",
	Subsystem: "circulation",
	Name:      "loans_returned_total",
	Help:      "Total loans returned, by resulting book status.",
}, []string{"book_status"})

var FinesAssessed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "libracirc",
	Subsystem: "circulation",
	Name:      "fines_assessed_total",
	Help:      "Sum of fines assessed on return, in currency units.",
})

var Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "libracirc",
	Subsystem: "circulation",
	Name:      "rejections_total",
	Help:      "Circulation requests rejected, by operation and error kind.",
}, []string{"operation", "reason"})

var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "libracirc",
	Subsystem: "notify",
	Name:      "sent_total",
	Help:      "Notifications delivered to every sink, by kind.",
}, []string{"kind"})

var NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "libracirc",
	Subsystem: "notify",
	Name:      "failures_total",
	Help:      "Notifications that failed on at least one sink, by kind.",
}, []string{"kind"})

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "libracirc",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})
