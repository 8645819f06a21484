package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkout/internal/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. Errors wrapped with Permanent are logged and
// the message is committed. Any other error is retried with backoff and the
// message stays uncommitted until the handler succeeds.
type Handler func(ctx context.Context, msg kafka.Message) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. an undecodable payload.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type Consumer struct {
	Reader MessageReader
	Topic  string
	Logger *logger.Logger

	// Backoff is the pause after a failed fetch and the first pause between
	// handler retries. Retry pauses double up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
	return &Consumer{Reader: reader, Topic: topic, Logger: log, Backoff: time.Second, MaxBackoff: 30 * time.Second}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	c.Logger.LogKafka("CONSUMER_STARTED", c.Topic, "waiting for messages")

	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.Logger.LogKafka("CONSUMER_STOPPED", c.Topic, "context cancelled")
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", c.Topic, err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.Backoff):
			}
			continue
		}

		if !c.handleWithRetry(ctx, handle, msg) {
			c.Logger.LogKafka("CONSUMER_STOPPED", c.Topic, fmt.Sprintf("offset %d left uncommitted", msg.Offset))
			return nil
		}

		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Commit failed for %s offset %d: %v", msg.Topic, msg.Offset, err))
		}
	}
}

// handleWithRetry runs handle until it succeeds or fails permanently. It
// returns false when ctx ended first, in which case the message must not be committed.
func (c *Consumer) handleWithRetry(ctx context.Context, handle Handler, msg kafka.Message) bool {
	wait := c.Backoff
	if wait <= 0 {
		wait = time.Second
	}
	for attempt := 1; ; attempt++ {
		err := handle(ctx, msg)
		if err == nil {
			return true
		}
		if IsPermanent(err) {
			c.Logger.Error("KAFKA", fmt.Sprintf("Dropping %s offset %d: %v", msg.Topic, msg.Offset, err))
			return true
		}
		c.Logger.Warn("KAFKA", fmt.Sprintf("Handler failed for %s offset %d (attempt %d), retrying in %s: %v", msg.Topic, msg.Offset, attempt, wait, err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		wait *= 2
		if c.MaxBackoff > 0 && wait > c.MaxBackoff {
			wait = c.MaxBackoff
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
