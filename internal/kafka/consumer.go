package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"

	"ms-venue-ticketing/internal/logger"
	"ms-venue-ticketing/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// PaymentResult is the provider verdict for one payment session.
type PaymentResult struct {
	SessionID string                 `json:"session_id"`
	Outcome   models.ProviderOutcome `json:"outcome"`
}

type Consumer struct {
	reader MessageReader
	log    *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

func NewConsumerWithReader(reader MessageReader, log *logger.Logger) *Consumer {
	return &Consumer{reader: reader, log: log}
}

// Start consumes payment results until ctx is cancelled. Malformed messages
// and handler failures are logged and skipped.
func (c *Consumer) Start(ctx context.Context, handler func(context.Context, PaymentResult) error) error {
	c.log.Info("KAFKA", "Payment result consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("KAFKA", "Payment result consumer stopped")
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			// A closed reader reports io.EOF forever.
			if errors.Is(err, io.EOF) {
				return err
			}
			continue
		}

		var result PaymentResult
		if err := json.Unmarshal(msg.Value, &result); err != nil || result.SessionID == "" || !result.Outcome.Valid() {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping malformed payment result at offset %d", msg.Offset))
			continue
		}

		if err := handler(ctx, result); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Payment result for session %s failed: %v", result.SessionID, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
