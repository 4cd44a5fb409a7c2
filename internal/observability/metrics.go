package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionsStartedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_journal",
		Subsystem: "journal",
		Name:      "sessions_started_total",
		Help:      "Number of journal writes that created a new session row.",
	})
	sessionsExtendedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_journal",
		Subsystem: "journal",
		Name:      "sessions_extended_total",
		Help:      "Number of journal writes that extended an existing session.",
	})
	clockSkewCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "presence_journal",
		Subsystem: "journal",
		Name:      "clock_skew_anomalies_total",
		Help:      "Number of accepted writes whose end time preceded the start time.",
	})
	lastWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence_journal",
		Subsystem: "journal",
		Name:      "last_write_end_timestamp_seconds",
		Help:      "End timestamp of the most recent session write.",
	})
)

func init() {
	prometheus.MustRegister(sessionsStartedCounter, sessionsExtendedCounter, clockSkewCounter, lastWriteGauge)
}

// RecordSessionWrite counts an insert or extend and moves the write watermark.
func RecordSessionWrite(inserted bool, end time.Time) {
	if inserted {
		sessionsStartedCounter.Inc()
	} else {
		sessionsExtendedCounter.Inc()
	}
	if !end.IsZero() {
		lastWriteGauge.Set(float64(end.Unix()))
	}
}

// RecordClockSkew counts an end-before-start anomaly.
func RecordClockSkew() {
	clockSkewCounter.Inc()
}
