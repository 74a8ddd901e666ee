package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/sqlite"
)

type recordingListener struct {
	mu      sync.Mutex
	changed []string
	removed []string
	fail    bool
}

func (r *recordingListener) OnDocumentChanged(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, doc.ID)
	if r.fail {
		return errors.New("listener down")
	}
	return nil
}

func (r *recordingListener) OnDocumentRemoved(_ context.Context, id string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
	return nil
}

type recordingPublisher struct {
	events []kafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.events = append(p.events, e)
	return nil
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) (*SQLStore, *testclock.Clock) {
	t.Helper()
	client, err := sqlite.New(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "corpus.db")})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	clk := testclock.NewClock(epoch)
	s := NewSQLStore(client.DB, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, s.Migrate(context.Background()))
	return s, clk
}

func TestPutAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc := &Document{ID: "A", Title: "Fattura", Body: "fattura elettronica", Category: "invoices"}
	require.NoError(t, s.Put(ctx, doc))
	assert.Equal(t, StatusActive, doc.Status, "blank status defaults to active")

	got, err := s.GetDocument(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, *doc, *got)
	assert.Equal(t, epoch, got.UpdatedAt)

	doc.Body = "nota di credito"
	require.NoError(t, s.Put(ctx, doc))
	got, err = s.GetDocument(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "nota di credito", got.Body)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPutValidates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, doc := range []*Document{
		{ID: "", Title: "x"},
		{ID: "a"},
		{ID: "a", Title: "x", Status: "deleted"},
	} {
		err := s.Put(ctx, doc)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestGetAndDeleteMissing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.GetDocument(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "nope"), apperrors.ErrDocumentNotFound)
}

func TestListChangedSince(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &Document{ID: "b", Title: "first"}))
	clk.Advance(time.Minute)
	mark := clk.Now()
	require.NoError(t, s.Put(ctx, &Document{ID: "c", Title: "second"}))
	require.NoError(t, s.Put(ctx, &Document{ID: "a", Title: "second too"}))
	clk.Advance(time.Minute)
	require.NoError(t, s.Put(ctx, &Document{ID: "d", Title: "third"}))

	all, err := s.ListChangedSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	recent, err := s.ListChangedSince(ctx, mark)
	require.NoError(t, err)
	var ids []string
	for _, d := range recent {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids, "ordered by update time then id")
}

func TestWritesNotifyListenersAfterCommit(t *testing.T) {
	pub := &recordingPublisher{}
	s, _ := newTestStore(t, WithEvents(pub))
	l := &recordingListener{}
	s.Subscribe(l)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &Document{ID: "A", Title: "fattura"}))
	require.NoError(t, s.Delete(ctx, "A"))
	assert.Equal(t, []string{"A"}, l.changed)
	assert.Equal(t, []string{"A"}, l.removed)

	require.Len(t, pub.events, 2)
	assert.Equal(t, "A", pub.events[0].Key)
	first := pub.events[0].Value.(ChangeEvent)
	assert.Equal(t, OpUpsert, first.Op)
	require.NotNil(t, first.Document)
	assert.Equal(t, "fattura", first.Document.Title)
	assert.Equal(t, OpDelete, pub.events[1].Value.(ChangeEvent).Op)
}

func TestListenerFailureDoesNotFailWrite(t *testing.T) {
	s, _ := newTestStore(t)
	s.Subscribe(&recordingListener{fail: true})
	require.NoError(t, s.Put(context.Background(), &Document{ID: "A", Title: "x"}))
	_, err := s.GetDocument(context.Background(), "A")
	assert.NoError(t, err)
}

func TestChangeEventApply(t *testing.T) {
	ctx := context.Background()
	l := &recordingListener{}
	raw, err := json.Marshal(ChangeEvent{Op: OpUpsert, DocumentID: "A", Document: &Document{ID: "A", Title: "t", Status: StatusActive}})
	require.NoError(t, err)
	decoded, err := kafka.DecodeJSON[ChangeEvent](raw)
	require.NoError(t, err)
	require.NoError(t, decoded.Apply(ctx, l))
	assert.Equal(t, []string{"A"}, l.changed)

	assert.ErrorIs(t, (&ChangeEvent{Op: OpUpsert, DocumentID: "B"}).Apply(ctx, l), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, (&ChangeEvent{Op: "rename", DocumentID: "B"}).Apply(ctx, l), apperrors.ErrInvalidInput)
	require.NoError(t, (&ChangeEvent{Op: OpDelete, DocumentID: "B"}).Apply(ctx, l))
	assert.Equal(t, []string{"B"}, l.removed)
}

func TestOlderPutDoesNotOverwriteNewerVersion(t *testing.T) {
	client, err := sqlite.New(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "corpus.db")})
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	ahead := NewSQLStore(client.DB, WithClock(testclock.NewClock(epoch.Add(time.Minute))))
	behind := NewSQLStore(client.DB, WithClock(testclock.NewClock(epoch)))
	require.NoError(t, ahead.Migrate(ctx))
	l := &recordingListener{}
	behind.Subscribe(l)

	require.NoError(t, ahead.Put(ctx, &Document{ID: "A", Title: "nuova"}))
	require.NoError(t, behind.Put(ctx, &Document{ID: "A", Title: "vecchia"}))

	got, err := behind.GetDocument(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "nuova", got.Title)
	assert.Equal(t, epoch.Add(time.Minute), got.UpdatedAt)
	assert.Empty(t, l.changed, "a superseded write is not notified")
}
