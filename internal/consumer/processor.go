// Package consumer ingests observation events from Kafka and feeds them to
// the presence journal.
package consumer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/presence/internal/domain"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives normalized observations.
type Handler interface {
	Handle(context.Context, domain.Observation) error
}

// DeadLetterer forwards undecodable messages to a dead-letter topic.
type DeadLetterer interface {
	Forward(ctx context.Context, msg kafka.Message, reason string) error
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithDeadLetter routes malformed messages to the provided dead-letter sink
// instead of only dropping them.
func WithDeadLetter(dl DeadLetterer) Option {
	return func(p *Processor) {
		p.deadLetter = dl
	}
}

// WithRetryBackoff tunes the delay between handler retries. The delay starts
// at base and doubles on each failure up to max.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(p *Processor) {
		if base > 0 {
			p.retryBase = base
		}
		if max > 0 {
			p.retryMax = max
		}
	}
}

// Processor pulls messages from Kafka, normalizes them into observations,
// and dispatches to a Handler.
type Processor struct {
	reader     Reader
	handler    Handler
	deadLetter DeadLetterer
	logger     *log.Logger
	retryBase  time.Duration
	retryMax   time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:    reader,
		handler:   handler,
		logger:    log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		retryBase: time.Second,
		retryMax:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes messages until the context is
// cancelled. Malformed messages are committed so they cannot poison the
// partition. Handler failures are retried in place with exponential backoff:
// commits are cumulative, so skipping ahead after a failure would silently
// drop the failed message once a later offset is committed.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		obs, decodeErr := decodeObservation(msg)
		if decodeErr != nil {
			p.logger.Printf("rejected message (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordRejected(msg.Topic)
			if p.deadLetter != nil {
				if dlErr := p.deadLetter.Forward(ctx, msg, decodeErr.Error()); dlErr != nil {
					p.logger.Printf("dead-letter forward failed: %v", dlErr)
				}
			}
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after rejection: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handleWithRetry(ctx, msg, obs); handleErr != nil {
			return handleErr
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(msg)
		}
	}
}

func (p *Processor) handleWithRetry(ctx context.Context, msg kafka.Message, obs domain.Observation) error {
	delay := p.retryBase
	for {
		err := p.handler.Handle(ctx, obs)
		if err == nil {
			return nil
		}

		p.logger.Printf("handler error (subject=%d, activity=%q, offset=%d): %v, retrying in %s", obs.SubjectID, obs.Activity, msg.Offset, err, delay)
		recordHandlerError(msg.Topic)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > p.retryMax {
			delay = p.retryMax
		}
	}
}
