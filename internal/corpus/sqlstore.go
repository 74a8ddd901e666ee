package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

// schema is valid for both PostgreSQL and SQLite. updated_at holds Unix
// nanoseconds so range scans compare integers on either driver.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		category   TEXT NOT NULL DEFAULT '',
		source     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_updated_at ON documents (updated_at)`,
}

type documentRow struct {
	ID        string `db:"id"`
	Title     string `db:"title"`
	Body      string `db:"body"`
	Category  string `db:"category"`
	Source    string `db:"source"`
	Status    string `db:"status"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r *documentRow) document() Document {
	return Document{
		ID:        r.ID,
		Title:     r.Title,
		Body:      r.Body,
		Category:  r.Category,
		Source:    r.Source,
		Status:    r.Status,
		UpdatedAt: time.Unix(0, r.UpdatedAt).UTC(),
	}
}

// SQLStore keeps documents in a SQL database through sqlx. The same
// statements run against PostgreSQL and SQLite; placeholders are rebound
// for the driver. After every committed write the store notifies its
// listeners and, when configured, publishes a ChangeEvent.
type SQLStore struct {
	db        *sqlx.DB
	clock     clock.Clock
	events    EventPublisher
	mu        sync.RWMutex
	listeners []ChangeListener
	logger    *slog.Logger
}

type Option func(*SQLStore)

// WithEvents publishes a ChangeEvent for every committed write.
func WithEvents(p EventPublisher) Option {
	return func(s *SQLStore) { s.events = p }
}

func WithClock(c clock.Clock) Option {
	return func(s *SQLStore) { s.clock = c }
}

func NewSQLStore(db *sqlx.DB, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:     db,
		clock:  clock.WallClock,
		logger: slog.Default().With("component", "corpus-store", "driver", db.DriverName()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the documents table when it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrating corpus schema: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction, rolling back when fn fails.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Subscribe registers l to be called synchronously after each write.
func (s *SQLStore) Subscribe(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Put inserts or replaces doc. UpdatedAt is set to the store clock. A row
// already holding a newer version is left alone and no change is notified,
// so concurrent writers of one document notify in version order.
func (s *SQLStore) Put(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	doc.UpdatedAt = s.clock.Now().UTC()
	row := documentRow{
		ID:        doc.ID,
		Title:     doc.Title,
		Body:      doc.Body,
		Category:  doc.Category,
		Source:    doc.Source,
		Status:    doc.Status,
		UpdatedAt: doc.UpdatedAt.UnixNano(),
	}
	query := s.db.Rebind(`INSERT INTO documents (id, title, body, category, source, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			category = excluded.category,
			source = excluded.source,
			status = excluded.status,
			updated_at = excluded.updated_at
		WHERE documents.updated_at <= excluded.updated_at`)
	res, err := s.db.ExecContext(ctx, query,
		row.ID, row.Title, row.Body, row.Category, row.Source, row.Status, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.ID, err)
	}
	if n == 0 {
		s.logger.Debug("newer version already stored", "doc_id", doc.ID)
		return nil
	}
	s.logger.Debug("document stored", "doc_id", doc.ID, "status", doc.Status)

	stored := *doc
	s.notify(ctx, ChangeEvent{Op: OpUpsert, DocumentID: doc.ID, Document: &stored, ChangedAt: doc.UpdatedAt})
	return nil
}

// Delete removes the document. A missing id is ErrDocumentNotFound.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	s.logger.Debug("document deleted", "doc_id", id)
	s.notify(ctx, ChangeEvent{Op: OpDelete, DocumentID: id, ChangedAt: s.clock.Now().UTC()})
	return nil
}

func (s *SQLStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(
		`SELECT id, title, body, category, source, status, updated_at FROM documents WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", id, err)
	}
	doc := row.document()
	return &doc, nil
}

// ListChangedSince returns documents updated at or after since, oldest
// first. The zero time lists the whole corpus.
func (s *SQLStore) ListChangedSince(ctx context.Context, since time.Time) ([]Document, error) {
	var bound int64
	if !since.IsZero() {
		bound = since.UnixNano()
	}
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, title, body, category, source, status, updated_at FROM documents
		WHERE updated_at >= ? ORDER BY updated_at, id`), bound)
	if err != nil {
		return nil, fmt.Errorf("listing changed documents: %w", err)
	}
	docs := make([]Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].document()
	}
	return docs, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM documents`); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// notify runs after commit. Delivery failures leave the index stale until
// the next reindex and are logged rather than failing the write.
func (s *SQLStore) notify(ctx context.Context, e ChangeEvent) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, l := range listeners {
		if err := e.Apply(ctx, l); err != nil {
			s.logger.Error("change listener failed", "doc_id", e.DocumentID, "op", e.Op, "error", err)
		}
	}
	if s.events != nil {
		if err := publishEvent(ctx, s.events, e); err != nil {
			s.logger.Error("failed to publish change event", "doc_id", e.DocumentID, "op", e.Op, "error", err)
		}
	}
}

func errMissingDocument(id string) error {
	return fmt.Errorf("%w: upsert event for %s carries no document", apperrors.ErrInvalidInput, id)
}

func errUnknownOp(op string) error {
	return fmt.Errorf("%w: unknown change operation %q", apperrors.ErrInvalidInput, op)
}
