package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_journal",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of observation messages successfully handled.",
	}, []string{"topic"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_journal",
		Subsystem: "consumer",
		Name:      "messages_rejected_total",
		Help:      "Number of messages rejected at the ingestion boundary per topic.",
	}, []string{"topic"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_journal",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of journal write failures per topic.",
	}, []string{"topic"})

	deadLetteredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence_journal",
		Subsystem: "consumer",
		Name:      "messages_dead_lettered_total",
		Help:      "Number of rejected messages forwarded to the dead-letter topic.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "presence_journal",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, rejectedCounter, handlerErrorCounter, deadLetteredCounter, lastMessageGauge)
}

func recordProcessed(msg kafka.Message) {
	processedCounter.WithLabelValues(msg.Topic).Inc()
	if !msg.Time.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Time.Unix()))
	}
}

func recordRejected(topic string) {
	rejectedCounter.WithLabelValues(topic).Inc()
}

func recordHandlerError(topic string) {
	handlerErrorCounter.WithLabelValues(topic).Inc()
}

func recordDeadLettered(topic string) {
	deadLetteredCounter.WithLabelValues(topic).Inc()
}
