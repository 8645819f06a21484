package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkout/internal/config"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	Writer MessageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

// NewProducer builds a producer whose writer picks the topic per message.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

// TopicFor maps a transaction status onto its lifecycle topic.
func (p *Producer) TopicFor(status models.TransactionStatus) (string, error) {
	switch status {
	case models.StatusWaitingForPayment:
		return p.Topics.TransactionCreated, nil
	case models.StatusWaitingForAdminConfirmation:
		return p.Topics.TransactionAwaiting, nil
	case models.StatusDone:
		return p.Topics.TransactionDone, nil
	case models.StatusRejected:
		return p.Topics.TransactionRejected, nil
	default:
		return "", fmt.Errorf("no topic for status %q", status)
	}
}

// PublishTransaction streams a transaction lifecycle event, keyed by transaction ID
// so every change of one transaction lands on the same partition.
func (p *Producer) PublishTransaction(ctx context.Context, event models.TransactionEvent) error {
	topic, err := p.TopicFor(event.Status)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, event.TransactionID, event)
}

// Publish JSON-encodes value onto topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("write %s message: %w", topic, err)
	}

	p.Logger.LogKafka("PUBLISHED", topic, key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
