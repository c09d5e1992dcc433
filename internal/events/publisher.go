package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-digest-service/internal/observability"
)

// Publisher emits lifecycle events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	// Publish sends one event. The key controls partition affinity; use
	// the paper identity or run ID so related events stay ordered.
	Publish(ctx context.Context, key string, envelope Envelope) error

	// Close flushes buffered events and releases resources.
	Close() error
}

// messageWriter is the subset of kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// KafkaPublisher publishes events to a Kafka topic.
type KafkaPublisher struct {
	writer  messageWriter
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Compile-time interface verification.
var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to the configured topic.
// Metrics may be nil.
func NewKafkaPublisher(cfg KafkaConfig, logger zerolog.Logger, metrics *observability.Metrics) *KafkaPublisher {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer:  writer,
		logger:  logger.With().Str("component", "kafka_publisher").Logger(),
		metrics: metrics,
	}
}

// Publish serializes the envelope and writes it to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, envelope Envelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", envelope.EventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(envelope.EventType)},
			{Key: "source", Value: []byte(envelope.Source)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.RecordEventFailed(envelope.EventType)
		}
		p.logger.Error().Err(err).
			Str("event_type", envelope.EventType).
			Str("event_id", envelope.EventID).
			Msg("failed to publish event")
		return fmt.Errorf("failed to publish event %s: %w", envelope.EventType, err)
	}

	if p.metrics != nil {
		p.metrics.RecordEventPublished(envelope.EventType)
	}
	p.logger.Debug().
		Str("event_type", envelope.EventType).
		Str("event_id", envelope.EventID).
		Str("key", key).
		Msg("event published")

	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards all events. Used when Kafka is disabled.
type NopPublisher struct{}

// Compile-time interface verification.
var _ Publisher = (*NopPublisher)(nil)

// NewNopPublisher creates a publisher that drops every event.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// Publish discards the event.
func (p *NopPublisher) Publish(_ context.Context, _ string, _ Envelope) error {
	return nil
}

// Close is a no-op.
func (p *NopPublisher) Close() error {
	return nil
}
