// Package consumer reads corpus change events from Kafka and applies them
// to a change listener, normally the indexing coordinator.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/resilience"
)

// HandleChanges returns a MessageHandler that applies each ChangeEvent to
// l. Transient failures are retried with backoff; events that can never
// apply are logged and skipped so they do not block the partition.
func HandleChanges(l corpus.ChangeListener, retry resilience.RetryConfig) kafka.MessageHandler {
	logger := slog.Default().With("component", "change-consumer")
	retry.ShouldRetry = retryable
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[corpus.ChangeEvent](value)
		if err != nil {
			logger.Error("failed to decode change event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		logger.Debug("processing change event",
			"doc_id", event.DocumentID,
			"op", event.Op,
		)
		err = resilience.Retry(ctx, "apply-change", retry, func() error {
			return event.Apply(ctx, l)
		})
		if err != nil && !retryable(err) {
			logger.Error("dropping change event",
				"doc_id", event.DocumentID,
				"op", event.Op,
				"error", err,
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("applying %s of %s: %w", event.Op, event.DocumentID, err)
		}
		return nil
	}
}

func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrInvalidInput) && !errors.Is(err, apperrors.ErrAnalyzerFailure)
}
