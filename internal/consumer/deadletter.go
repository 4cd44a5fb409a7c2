package consumer

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// DeadLetterWriter republishes rejected observation messages to a dead-letter
// topic, preserving the original key, value, and headers and attaching the
// rejection reason and source topic as headers.
type DeadLetterWriter struct {
	writer *kafka.Writer
}

// NewDeadLetterWriter creates a DeadLetterWriter targeting the given topic.
func NewDeadLetterWriter(brokers []string, topic string) *DeadLetterWriter {
	return &DeadLetterWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

// Forward writes the rejected message to the dead-letter topic.
func (w *DeadLetterWriter) Forward(ctx context.Context, msg kafka.Message, reason string) error {
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq_reason", Value: []byte(reason)},
		kafka.Header{Key: "dlq_source_topic", Value: []byte(msg.Topic)},
	)

	recordDeadLettered(msg.Topic)
	return w.writer.WriteMessages(ctx, kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
}

// Close releases the underlying writer.
func (w *DeadLetterWriter) Close() error {
	return w.writer.Close()
}
