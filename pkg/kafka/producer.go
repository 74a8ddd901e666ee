package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
)

const contentTypeJSON = "application/json"

// Event is one keyed JSON message. Events sharing a Key land on the same
// partition, so per-key order is preserved.
type Event struct {
	Key   string
	Value any
}

// Producer publishes JSON events to a single topic.
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
		},
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event and waits for the brokers to acknowledge it.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in a single request. Nothing is written if any
// event fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now()
	messages := make([]kafka.Message, len(events))
	size := 0
	for i, e := range events {
		msg, err := encode(e, now)
		if err != nil {
			return err
		}
		size += len(msg.Value)
		messages[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("publish failed", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d events to %s: %w", len(messages), p.topic, err)
	}
	p.logger.Debug("published", "count", len(messages), "bytes", size)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(e Event, at time.Time) (kafka.Message, error) {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %q: %w", e.Key, err)
	}
	return kafka.Message{
		Key:     []byte(e.Key),
		Value:   value,
		Time:    at,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte(contentTypeJSON)}},
	}, nil
}
