// Package indexer keeps the posting store in step with the corpus. The
// Coordinator receives change notifications, analyzes documents, publishes
// their postings and bumps the index generation that invalidates cached
// results. It optionally persists the index as a snapshot plus a journal of
// the changes applied since.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/metrics"
)

const (
	docLocks = 64
	// tombstoneRetention is how long, in corpus time, a deletion keeps
	// rejecting older copies of the document that arrive late.
	tombstoneRetention = time.Hour
)

// indexedDoc is what the coordinator knows about an indexed document. gen
// is the generation of the change that last applied it.
type indexedDoc struct {
	meta corpus.Metadata
	gen  uint64
}

type Coordinator struct {
	store    *index.Store
	analyzer *analyzer.Analyzer
	source   corpus.Source
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	generation atomic.Uint64
	locks      [docLocks]sync.Mutex

	// applyMu is held shared by every change and exclusively while a
	// checkpoint captures generation, view and metadata together.
	applyMu sync.RWMutex

	metaMu sync.RWMutex
	meta   map[string]indexedDoc
	// tombs holds the corpus time of recent deletions; newest is the latest
	// corpus time observed and bounds their retention.
	tombs  map[string]time.Time
	newest time.Time

	journal        *snapshot.Journal
	writer         *snapshot.Writer
	checkpointMu   sync.Mutex
	lastCheckpoint atomic.Uint64
}

type Option func(*Coordinator)

// WithSource lets the coordinator fetch documents for Reindex, CatchUp and
// self-repair.
func WithSource(src corpus.Source) Option {
	return func(c *Coordinator) { c.source = src }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator builds a coordinator over store. When cfg.DataDir is set
// the journal is opened there; call Recover before serving.
func NewCoordinator(store *index.Store, a *analyzer.Analyzer, cfg config.IndexerConfig, opts ...Option) (*Coordinator, error) {
	if cfg.ReindexConcurrency <= 0 {
		cfg.ReindexConcurrency = 4
	}
	c := &Coordinator{
		store:    store,
		analyzer: a,
		cfg:      cfg,
		meta:     make(map[string]indexedDoc),
		tombs:    make(map[string]time.Time),
		logger:   slog.Default().With("component", "index-coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.DataDir != "" {
		j, err := snapshot.OpenJournal(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening index journal: %w", err)
		}
		c.journal = j
		c.writer = snapshot.NewWriter(cfg.DataDir)
	}
	return c, nil
}

// Generation increases by one for every change that altered the index.
func (c *Coordinator) Generation() uint64 {
	return c.generation.Load()
}

// Metadata implements executor.MetadataLookup.
func (c *Coordinator) Metadata(docID string) (corpus.Metadata, bool) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	e, ok := c.meta[docID]
	return e.meta, ok
}

func (c *Coordinator) Store() *index.Store {
	return c.store
}

func (c *Coordinator) Analyzer() *analyzer.Analyzer {
	return c.analyzer
}

// OnDocumentChanged indexes doc, or removes it when its status makes it
// unsearchable. On success the generation advances exactly once. An
// analyzer failure leaves the previous postings in place. A copy older
// than the indexed version, or than a later deletion, is ignored, so
// notifications that arrive out of order never roll a document back.
func (c *Coordinator) OnDocumentChanged(ctx context.Context, doc *corpus.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document without id", apperrors.ErrInvalidInput)
	}
	if !doc.Indexable() {
		_, err := c.remove(doc.ID, removal{at: doc.UpdatedAt}, true)
		return err
	}
	_, err := c.upsert(ctx, doc, true)
	return err
}

// OnDocumentRemoved drops every posting of id. at is the corpus time of
// the deletion; a zero at removes unconditionally. Removing an unknown
// document is a no-op and leaves the generation unchanged.
func (c *Coordinator) OnDocumentRemoved(_ context.Context, id string, at time.Time) error {
	_, err := c.remove(id, removal{at: at}, true)
	return err
}

// upsert reports whether doc was applied; a superseded copy is not.
func (c *Coordinator) upsert(ctx context.Context, doc *corpus.Document, journal bool) (bool, error) {
	zones, err := c.analyze(doc)
	if err != nil {
		c.countFailure("analyzer")
		c.logger.Error("analysis failed, document left stale", "doc_id", doc.ID, "error", err)
		return false, err
	}

	c.applyMu.RLock()
	defer c.applyMu.RUnlock()
	lock := c.lock(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	if c.superseded(doc.ID, doc.UpdatedAt) {
		c.logger.Debug("ignoring superseded document version", "doc_id", doc.ID, "updated_at", doc.UpdatedAt)
		return false, nil
	}
	if err := c.store.Upsert(doc.ID, zones); err != nil {
		if !errors.Is(err, index.ErrCorruptPostings) {
			return false, fmt.Errorf("indexing document %s: %w", doc.ID, err)
		}
		c.countFailure("corruption")
		c.logger.Warn("corrupt postings, repairing document", "doc_id", doc.ID, "error", err)
		if rerr := c.repairLocked(ctx, doc); rerr != nil {
			return false, fmt.Errorf("repairing document %s: %w", doc.ID, rerr)
		}
	}
	gen := c.generation.Add(1)
	meta := doc.Metadata()
	c.metaMu.Lock()
	c.meta[doc.ID] = indexedDoc{meta: meta, gen: gen}
	delete(c.tombs, doc.ID)
	c.observeTime(meta.UpdatedAt)
	c.metaMu.Unlock()
	c.observe(gen)
	if c.metrics != nil {
		c.metrics.DocsIndexedTotal.Inc()
	}
	if journal {
		c.appendJournal(snapshot.Record{Generation: gen, Op: snapshot.OpUpsert, ID: doc.ID, Doc: doc})
	}
	c.logger.Debug("document indexed", "doc_id", doc.ID, "generation", gen)
	return true, nil
}

// superseded reports whether a copy of id last updated at is older than
// the indexed version or not newer than its deletion. Unversioned copies
// are never superseded. Callers hold the document lock.
func (c *Coordinator) superseded(id string, at time.Time) bool {
	if at.IsZero() {
		return false
	}
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	if e, ok := c.meta[id]; ok && at.Before(e.meta.UpdatedAt) {
		return true
	}
	if deleted, ok := c.tombs[id]; ok && !at.After(deleted) {
		return true
	}
	return false
}

// observeTime advances the latest corpus time seen. Callers hold metaMu.
func (c *Coordinator) observeTime(at time.Time) {
	if at.After(c.newest) {
		c.newest = at
	}
}

// repairLocked drops the document's postings and derives them again from
// the corpus copy, once. Callers hold the document lock.
func (c *Coordinator) repairLocked(ctx context.Context, doc *corpus.Document) error {
	c.store.Remove(doc.ID)
	fresh := doc
	if c.source != nil {
		got, err := c.source.GetDocument(ctx, doc.ID)
		switch {
		case err == nil:
			fresh = got
		case errors.Is(err, apperrors.ErrDocumentNotFound):
			return nil
		default:
			c.logger.Warn("source unavailable during repair, using notified copy", "doc_id", doc.ID, "error", err)
		}
	}
	if !fresh.Indexable() {
		return nil
	}
	zones, err := c.analyze(fresh)
	if err != nil {
		return err
	}
	return c.store.Upsert(doc.ID, zones)
}

// removal qualifies a remove. at is the corpus time of the change and
// rejects it when the indexed copy is newer; ifGen, when set, removes only
// a document still at that generation.
type removal struct {
	at    time.Time
	ifGen uint64
}

func (c *Coordinator) remove(id string, r removal, journal bool) (bool, error) {
	c.applyMu.RLock()
	defer c.applyMu.RUnlock()
	lock := c.lock(id)
	lock.Lock()
	defer lock.Unlock()

	c.metaMu.Lock()
	e, indexed := c.meta[id]
	if r.ifGen != 0 && (!indexed || e.gen != r.ifGen) {
		c.metaMu.Unlock()
		return false, nil
	}
	if indexed && !r.at.IsZero() && r.at.Before(e.meta.UpdatedAt) {
		c.metaMu.Unlock()
		c.logger.Debug("ignoring superseded removal", "doc_id", id, "at", r.at)
		return false, nil
	}
	delete(c.meta, id)
	if !r.at.IsZero() {
		c.tombs[id] = r.at
		c.observeTime(r.at)
	}
	c.metaMu.Unlock()

	removed := c.store.Remove(id)
	if !removed && !indexed {
		return false, nil
	}
	gen := c.generation.Add(1)
	c.observe(gen)
	if c.metrics != nil {
		c.metrics.DocsRemovedTotal.Inc()
	}
	if journal {
		c.appendJournal(snapshot.Record{Generation: gen, Op: snapshot.OpRemove, ID: id, At: r.at})
	}
	c.logger.Debug("document removed", "doc_id", id, "generation", gen)
	return true, nil
}

// analyze runs the analyzer once per zone and tags the results.
func (c *Coordinator) analyze(doc *corpus.Document) ([]index.ZoneTokens, error) {
	title, err := c.analyzer.Analyze(doc.Title)
	if err != nil {
		return nil, fmt.Errorf("analyzing title of %s: %w", doc.ID, err)
	}
	body, err := c.analyzer.Analyze(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("analyzing body of %s: %w", doc.ID, err)
	}
	return []index.ZoneTokens{
		{Zone: index.ZoneTitle, Tokens: title},
		{Zone: index.ZoneBody, Tokens: body},
	}, nil
}

func (c *Coordinator) appendJournal(r snapshot.Record) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Append(r); err != nil {
		c.logger.Error("journal append failed", "doc_id", r.ID, "generation", r.Generation, "error", err)
	}
}

func (c *Coordinator) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &c.locks[h.Sum32()%docLocks]
}

func (c *Coordinator) observe(gen uint64) {
	if c.metrics == nil {
		return
	}
	c.metrics.IndexGeneration.Set(float64(gen))
	c.metrics.IndexedDocuments.Set(float64(c.store.DocCount()))
}

func (c *Coordinator) countFailure(reason string) {
	if c.metrics != nil {
		c.metrics.IndexFailuresTotal.WithLabelValues(reason).Inc()
	}
}

// ReindexReport summarizes a bulk reindex or catch-up.
type ReindexReport struct {
	Requested int           `json:"requested"`
	Indexed   int           `json:"indexed"`
	Removed   int           `json:"removed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Reindex derives postings again for ids, or for the whole corpus when ids
// is empty. A full reindex also removes documents the corpus no longer
// holds. Changes notified while it runs win over the listing: listed
// copies older than the indexed version are skipped, and only documents
// left untouched since the listing began are treated as deleted.
// Per-document failures are collected and never stop the others.
func (c *Coordinator) Reindex(ctx context.Context, ids []string) (ReindexReport, error) {
	if c.source == nil {
		return ReindexReport{}, fmt.Errorf("%w: reindex needs a corpus source", apperrors.ErrInternal)
	}
	start := time.Now()
	if len(ids) > 0 {
		report, err := c.run(ctx, len(ids), func(i int) (outcome, error) {
			return c.reindexOne(ctx, ids[i])
		})
		report.Elapsed = time.Since(start)
		return report, err
	}

	before := c.indexedGens()
	docs, err := c.source.ListChangedSince(ctx, time.Time{})
	if err != nil {
		return ReindexReport{}, fmt.Errorf("listing corpus: %w", err)
	}
	report, err := c.applyAll(ctx, docs)
	present := make(map[string]struct{}, len(docs))
	for i := range docs {
		present[docs[i].ID] = struct{}{}
	}
	ghosts := make([]string, 0)
	for id := range before {
		if _, ok := present[id]; !ok {
			ghosts = append(ghosts, id)
		}
	}
	sort.Strings(ghosts)
	for _, id := range ghosts {
		if removed, _ := c.remove(id, removal{ifGen: before[id]}, true); removed {
			report.Removed++
		}
	}
	report.Elapsed = time.Since(start)
	c.logger.Info("full reindex finished",
		"documents", report.Requested,
		"indexed", report.Indexed,
		"removed", report.Removed,
		"failed", report.Failed,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	return report, err
}

// CatchUp indexes every document the corpus changed at or after since.
// Deletions are not visible to it; a full Reindex reconciles them.
func (c *Coordinator) CatchUp(ctx context.Context, since time.Time) (ReindexReport, error) {
	if c.source == nil {
		return ReindexReport{}, fmt.Errorf("%w: catch-up needs a corpus source", apperrors.ErrInternal)
	}
	start := time.Now()
	docs, err := c.source.ListChangedSince(ctx, since)
	if err != nil {
		return ReindexReport{}, fmt.Errorf("listing changed documents: %w", err)
	}
	report, err := c.applyAll(ctx, docs)
	report.Elapsed = time.Since(start)
	c.logger.Info("catch-up finished", "since", since, "documents", report.Requested, "failed", report.Failed)
	return report, err
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeIndexed
	outcomeRemoved
)

func (c *Coordinator) reindexOne(ctx context.Context, id string) (outcome, error) {
	gen := c.indexedGen(id)
	doc, err := c.source.GetDocument(ctx, id)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		if gen == 0 {
			return outcomeNone, nil
		}
		removed, err := c.remove(id, removal{ifGen: gen}, true)
		if removed {
			return outcomeRemoved, err
		}
		return outcomeNone, err
	}
	if err != nil {
		c.countFailure("source")
		return outcomeNone, fmt.Errorf("fetching document %s: %w", id, err)
	}
	return c.applyDoc(ctx, doc)
}

func (c *Coordinator) applyDoc(ctx context.Context, doc *corpus.Document) (outcome, error) {
	if !doc.Indexable() {
		removed, err := c.remove(doc.ID, removal{at: doc.UpdatedAt}, true)
		if removed {
			return outcomeRemoved, err
		}
		return outcomeNone, err
	}
	applied, err := c.upsert(ctx, doc, true)
	if err != nil || !applied {
		return outcomeNone, err
	}
	return outcomeIndexed, nil
}

func (c *Coordinator) applyAll(ctx context.Context, docs []corpus.Document) (ReindexReport, error) {
	return c.run(ctx, len(docs), func(i int) (outcome, error) {
		return c.applyDoc(ctx, &docs[i])
	})
}

// run executes n jobs on a bounded, rate-limited pool.
func (c *Coordinator) run(ctx context.Context, n int, job func(i int) (outcome, error)) (ReindexReport, error) {
	report := ReindexReport{Requested: n}
	var limiter *rate.Limiter
	if c.cfg.ReindexRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.ReindexRatePerSec), c.cfg.ReindexConcurrency)
	}
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ReindexConcurrency)
	for i := 0; i < n; i++ {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		} else if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			res, err := job(i)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				errs = multierror.Append(errs, err)
			case res == outcomeIndexed:
				report.Indexed++
			case res == outcomeRemoved:
				report.Removed++
			}
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("%w: reindex interrupted: %w", apperrors.ErrTimeout, err))
	}
	return report, errs.ErrorOrNil()
}

// indexedGens maps every indexed document to the generation that last
// applied it.
func (c *Coordinator) indexedGens() map[string]uint64 {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	gens := make(map[string]uint64, len(c.meta))
	for id, e := range c.meta {
		gens[id] = e.gen
	}
	return gens
}

// indexedGen returns the generation that last applied id, or 0 when it is
// not indexed.
func (c *Coordinator) indexedGen(id string) uint64 {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.meta[id].gen
}

// pruneTombstones forgets deletions older than the retention window.
// Callers hold metaMu.
func (c *Coordinator) pruneTombstones() {
	cutoff := c.newest.Add(-tombstoneRetention)
	for id, at := range c.tombs {
		if at.Before(cutoff) {
			delete(c.tombs, id)
		}
	}
}
