// Package kafka publishes index-lifecycle events (flush and rebuild
// completions) for downstream consumers such as the CRM sync workers.
// Publishing is best-effort: callers log failures and never fail the
// indexing operation that produced the event.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gridstonehq/workspace-search/pkg/config"
)

const publishTimeout = 5 * time.Second

// Event is one message to publish. Key selects the partition; keying by
// workspace id keeps a tenant's events in order. Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

// Producer writes JSON events to a single topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a synchronous producer for the given topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: publishTimeout,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises the event and writes it, waiting for broker acks.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publishing event for key %s: %w", event.Key, err)
	}
	p.logger.Debug("event published", "key", event.Key, "bytes", len(payload))
	return nil
}

// Close flushes pending writes and releases the writer's connections.
func (p *Producer) Close() error {
	return p.writer.Close()
}
