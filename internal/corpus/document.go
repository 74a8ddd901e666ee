// Package corpus defines the documents the search engine indexes, the
// interfaces it consumes from the corpus store, and a SQL-backed store that
// notifies the indexer after every committed write.
package corpus

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

// Status values. Only active documents are searchable.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusArchived = "archived"
)

type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  string    `json:"category,omitempty"`
	Source    string    `json:"source,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Indexable reports whether the document's postings belong in the index.
func (d *Document) Indexable() bool {
	return d.Status == StatusActive
}

func (d *Document) Metadata() Metadata {
	return Metadata{Category: d.Category, Source: d.Source, Status: d.Status, UpdatedAt: d.UpdatedAt}
}

// Validate checks the fields a store requires before writing.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: document id is required", apperrors.ErrInvalidInput)
	}
	if d.Title == "" && d.Body == "" {
		return fmt.Errorf("%w: document %s has no title or body", apperrors.ErrInvalidInput, d.ID)
	}
	switch d.Status {
	case StatusActive, StatusInactive, StatusArchived:
	case "":
		d.Status = StatusActive
	default:
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, d.Status)
	}
	return nil
}

// Metadata is the part of a document that result filters match against,
// plus the version of the document it was taken from.
type Metadata struct {
	Category  string    `json:"category,omitempty"`
	Source    string    `json:"source,omitempty"`
	Status    string    `json:"status,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source fetches documents from the corpus store.
type Source interface {
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListChangedSince(ctx context.Context, since time.Time) ([]Document, error)
}

// ChangeListener is invoked by the corpus store after each committed write.
type ChangeListener interface {
	OnDocumentChanged(ctx context.Context, doc *Document) error
	// OnDocumentRemoved reports a deletion committed at corpus time at.
	OnDocumentRemoved(ctx context.Context, id string, at time.Time) error
}
