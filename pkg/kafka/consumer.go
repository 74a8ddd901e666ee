// Package kafka wraps segmentio/kafka-go with JSON producers and a
// consumer group reader that hands each message to a callback.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
)

// MessageHandler processes one message. A non-nil error leaves the message
// uncommitted and it is redelivered after a backoff.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

const (
	minRedeliveryDelay = 200 * time.Millisecond
	maxRedeliveryDelay = 30 * time.Second
)

// Consumer reads a topic as part of a consumer group. Messages of one
// partition are handled strictly in order: a failing message blocks its
// successors until it succeeds.
type Consumer struct {
	reader    *kafka.Reader
	handler   MessageHandler
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", cfg.ConsumerGroup),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.Close()
	delay := minRedeliveryDelay
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopped")
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			if !sleep(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay)
			continue
		}
		if !c.deliver(ctx, msg) {
			return nil
		}
		delay = minRedeliveryDelay
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// deliver runs the handler until it succeeds. It reports false if ctx was
// cancelled first.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) bool {
	delay := minRedeliveryDelay
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("handler failed, redelivering",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"retry_in", delay,
			"error", err,
		)
		if !sleep(ctx, delay) {
			return false
		}
		delay = nextDelay(delay)
	}
}

func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.reader.Close() })
	return c.closeErr
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}

func nextDelay(d time.Duration) time.Duration {
	return min(d*2, maxRedeliveryDelay)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
