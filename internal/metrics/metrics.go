// Package metrics exposes Prometheus instrumentation for the intake
// service: autosave volume and outcomes, and submission results.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SavesAttempted       prometheus.Counter
	SavesSkipped         prometheus.Counter
	SavesCancelled       prometheus.Counter
	SavesFailed          prometheus.Counter
	SaveDuration         prometheus.Histogram
	SubmissionsByOutcome *prometheus.CounterVec
	OpenSessions         prometheus.Gauge
}

// New registers the intake metrics with the given registerer. Tests pass a
// private registry; the server passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SavesAttempted: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_draft_saves_attempted_total",
			Help: "Total number of remote draft saves attempted",
		}),
		SavesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_draft_saves_skipped_total",
			Help: "Total number of save ticks skipped because nothing changed",
		}),
		SavesCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_draft_saves_cancelled_total",
			Help: "Total number of in-flight saves superseded by a newer change",
		}),
		SavesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "intake_draft_saves_failed_total",
			Help: "Total number of remote draft saves that failed",
		}),
		SaveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_draft_save_duration_seconds",
			Help:    "Latency of remote draft saves",
			Buckets: prometheus.DefBuckets,
		}),
		SubmissionsByOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_submissions_total",
			Help: "Listing submissions by outcome",
		}, []string{"outcome"}),
		OpenSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "intake_open_sessions",
			Help: "Number of currently open intake sessions",
		}),
	}
}

func (m *Metrics) ObserveSubmission(outcome string) {
	m.SubmissionsByOutcome.WithLabelValues(outcome).Inc()
}
