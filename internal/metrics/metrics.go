package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total follow-up emails sent",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total failed send attempts",
		},
	)

	EmailsExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_exhausted_total",
			Help: "Total entries moved to failed after reaching max attempts",
		},
	)

	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_queue_cycles_total",
			Help: "Processing cycles by result",
		},
		[]string{"result"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_queue_cycle_duration_seconds",
			Help:    "Processing cycle duration",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Cycle results.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

func Init() {
	prometheus.MustRegister(EmailsSent)
	prometheus.MustRegister(EmailFailures)
	prometheus.MustRegister(EmailsExhausted)
	prometheus.MustRegister(Cycles)
	prometheus.MustRegister(CycleDuration)
}
