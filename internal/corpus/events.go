package corpus

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/kafka"
)

// Change operations carried by a ChangeEvent.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// ChangeEvent is published after a committed corpus write so indexers in
// other processes can follow the corpus.
type ChangeEvent struct {
	Op         string    `json:"op"`
	DocumentID string    `json:"document_id"`
	Document   *Document `json:"document,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Apply delivers the event to a listener.
func (e *ChangeEvent) Apply(ctx context.Context, l ChangeListener) error {
	switch e.Op {
	case OpUpsert:
		if e.Document == nil {
			return errMissingDocument(e.DocumentID)
		}
		return l.OnDocumentChanged(ctx, e.Document)
	case OpDelete:
		return l.OnDocumentRemoved(ctx, e.DocumentID, e.ChangedAt)
	default:
		return errUnknownOp(e.Op)
	}
}

func publishEvent(ctx context.Context, p EventPublisher, e ChangeEvent) error {
	// Keyed by document so changes to one document stay ordered within a
	// partition.
	return p.Publish(ctx, kafka.Event{Key: e.DocumentID, Value: e})
}
