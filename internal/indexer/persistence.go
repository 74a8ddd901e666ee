package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/snapshot"
)

// RecoverReport describes how the index was restored at startup.
type RecoverReport struct {
	SnapshotGeneration uint64
	Documents          int
	Replayed           int
	// Rebuilt is set when the snapshot was unreadable and the index was
	// derived again from the corpus.
	Rebuilt bool
}

// Recover loads the latest snapshot and replays the journal on top of it.
// A corrupt snapshot is discarded; when a corpus source is configured the
// index is then rebuilt from it.
func (c *Coordinator) Recover(ctx context.Context) (RecoverReport, error) {
	var report RecoverReport
	if c.writer == nil {
		return report, nil
	}
	corrupt := false
	snap, err := c.readSnapshot()
	switch {
	case err == nil:
		if err := c.store.Load(snap.Entries); err != nil {
			c.logger.Error("snapshot rejected by posting store", "error", err)
			corrupt = true
			break
		}
		gen := max(snap.Generation, 1)
		c.metaMu.Lock()
		c.meta = make(map[string]indexedDoc, len(snap.Metadata))
		for id, m := range snap.Metadata {
			c.meta[id] = indexedDoc{meta: m, gen: gen}
			c.observeTime(m.UpdatedAt)
		}
		c.metaMu.Unlock()
		c.generation.Store(snap.Generation)
		c.lastCheckpoint.Store(snap.Generation)
		report.SnapshotGeneration = snap.Generation
		c.logger.Info("snapshot loaded",
			"generation", snap.Generation,
			"terms", len(snap.Entries),
			"documents", c.store.DocCount(),
		)
	case snapshot.IsNotExist(err):
		c.logger.Info("no snapshot found, starting empty")
	default:
		c.logger.Error("snapshot unreadable, discarding", "error", err)
		corrupt = true
	}

	replayed, err := c.journal.Replay(report.SnapshotGeneration, func(r snapshot.Record) error {
		return c.replay(ctx, r)
	})
	report.Replayed = replayed
	if err != nil {
		return report, fmt.Errorf("replaying journal: %w", err)
	}

	if corrupt && c.source != nil {
		if _, err := c.Reindex(ctx, nil); err != nil {
			return report, fmt.Errorf("rebuilding index after corrupt snapshot: %w", err)
		}
		report.Rebuilt = true
	}
	report.Documents = c.store.DocCount()
	c.observe(c.Generation())
	c.logger.Info("index recovered",
		"snapshot_generation", report.SnapshotGeneration,
		"replayed", report.Replayed,
		"documents", report.Documents,
		"generation", c.Generation(),
		"rebuilt", report.Rebuilt,
	)
	return report, nil
}

// replay applies one journal record without journaling it again. Records
// carry whole documents, so applying one twice is harmless.
func (c *Coordinator) replay(ctx context.Context, r snapshot.Record) error {
	var err error
	switch r.Op {
	case snapshot.OpUpsert:
		if r.Doc == nil {
			return fmt.Errorf("upsert record for %s has no document", r.ID)
		}
		if r.Doc.Indexable() {
			_, err = c.upsert(ctx, r.Doc, false)
		} else {
			_, err = c.remove(r.ID, removal{at: r.Doc.UpdatedAt}, false)
		}
	case snapshot.OpRemove:
		_, err = c.remove(r.ID, removal{at: r.At}, false)
	default:
		return fmt.Errorf("unknown journal operation %q", r.Op)
	}
	if err != nil {
		return err
	}
	if gen := c.generation.Load(); gen < r.Generation {
		c.generation.Store(r.Generation)
	}
	return nil
}

func (c *Coordinator) readSnapshot() (*snapshot.Snapshot, error) {
	r, err := snapshot.OpenReader(c.writer.Path())
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Load()
}

// Checkpoint writes a snapshot of the current generation and drops the
// journal records it covers. It is a no-op when nothing changed since the
// previous checkpoint or persistence is disabled.
func (c *Coordinator) Checkpoint() error {
	if c.writer == nil {
		return nil
	}
	c.checkpointMu.Lock()
	defer c.checkpointMu.Unlock()

	c.applyMu.Lock()
	gen := c.generation.Load()
	if gen == c.lastCheckpoint.Load() {
		c.applyMu.Unlock()
		return nil
	}
	view := c.store.View()
	c.metaMu.Lock()
	meta := make(map[string]corpus.Metadata, len(c.meta))
	for id, e := range c.meta {
		meta[id] = e.meta
	}
	c.pruneTombstones()
	c.metaMu.Unlock()
	c.applyMu.Unlock()

	start := time.Now()
	entries := view.Entries()
	view.Release()
	path, err := c.writer.Write(&snapshot.Snapshot{Generation: gen, Entries: entries, Metadata: meta})
	if err != nil {
		c.countSnapshot("error")
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := c.journal.Sync(); err != nil {
		c.countSnapshot("error")
		return err
	}
	if err := c.journal.Compact(gen); err != nil {
		c.countSnapshot("error")
		return fmt.Errorf("compacting journal: %w", err)
	}
	c.lastCheckpoint.Store(gen)
	c.countSnapshot("success")
	if c.metrics != nil {
		c.metrics.IndexedTerms.Set(float64(len(entries)))
	}
	c.logger.Info("index checkpointed",
		"path", path,
		"generation", gen,
		"terms", len(entries),
		"documents", len(meta),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// StartFlushLoop syncs the journal, compacts the store and checkpoints on
// every tick until ctx is cancelled, then checkpoints one last time.
func (c *Coordinator) StartFlushLoop(ctx context.Context) {
	interval := c.cfg.SnapshotInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("flush loop stopping, performing final checkpoint")
				if err := c.Checkpoint(); err != nil {
					c.logger.Error("final checkpoint failed", "error", err)
				}
				return
			case <-ticker.C:
				c.store.Compact()
				if c.journal != nil {
					if err := c.journal.Sync(); err != nil {
						c.logger.Error("journal sync failed", "error", err)
					}
				}
				if err := c.Checkpoint(); err != nil {
					c.logger.Error("periodic checkpoint failed", "error", err)
				}
			}
		}
	}()
}

// Close checkpoints and closes the journal.
func (c *Coordinator) Close() error {
	if c.journal == nil {
		return nil
	}
	err := c.Checkpoint()
	if cerr := c.journal.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func (c *Coordinator) countSnapshot(status string) {
	if c.metrics != nil {
		c.metrics.SnapshotsTotal.WithLabelValues(status).Inc()
	}
}
