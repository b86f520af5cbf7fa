// Package kafka provides a Kafka-backed audit recorder for shipping exchange
// records to a topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/harborworks/ferry/pkg/audit"
)

// Recorder publishes exchange records to a Kafka topic, keyed by exchange ID.
type Recorder struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// Config holds the Kafka recorder configuration.
type Config struct {
	// Brokers is the list of bootstrap broker addresses.
	Brokers []string

	// Topic is the topic exchange records are published to.
	Topic string
}

// NewRecorder creates a Kafka audit recorder.
func NewRecorder(c Config, logger *zap.Logger) (*Recorder, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if c.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(c.Brokers...),
		Topic:    c.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	logger.Info("kafka audit recorder initialized",
		zap.Strings("brokers", c.Brokers),
		zap.String("topic", c.Topic),
	)

	return &Recorder{
		writer: writer,
		logger: logger,
	}, nil
}

// Record publishes one exchange record to the topic.
func (r *Recorder) Record(ctx context.Context, ex *audit.Exchange) error {
	if ex == nil {
		return audit.ErrNilExchange
	}

	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshaling exchange %s: %w", ex.ID, err)
	}

	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ex.ID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publishing exchange %s: %w", ex.ID, err)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (r *Recorder) Close() error {
	return r.writer.Close()
}
