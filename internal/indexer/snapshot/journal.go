package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
)

const JournalName = "journal.log"

// Journal operations.
const (
	OpUpsert = "upsert"
	OpRemove = "remove"
)

// Record is one applied change. Upserts carry the full document so replay
// does not depend on the corpus store being reachable.
type Record struct {
	Generation uint64           `json:"g"`
	Op         string           `json:"op"`
	ID         string           `json:"id"`
	Doc        *corpus.Document `json:"doc,omitempty"`
	// At is the corpus time of a removal.
	At time.Time `json:"at,omitempty"`
}

// Journal is an append-only JSON-lines log of changes applied since the
// last snapshot. Records are buffered; Sync flushes them to stable storage.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	w      *bufio.Writer
	logger *slog.Logger
}

func OpenJournal(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	path := filepath.Join(dataDir, JournalName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{
		path:   path,
		file:   f,
		w:      bufio.NewWriter(f),
		logger: slog.Default().With("component", "journal"),
	}, nil
}

func (j *Journal) Append(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling journal record: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending journal record: %w", err)
	}
	return nil
}

// Sync flushes buffered records and fsyncs the file.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.syncLocked()
}

func (j *Journal) syncLocked() error {
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("syncing journal: %w", err)
	}
	return nil
}

// Replay calls fn for every record with a generation above after, in log
// order. A torn final record from a crash ends replay without error.
func (j *Journal) Replay(after uint64, fn func(Record) error) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return 0, fmt.Errorf("flushing journal: %w", err)
	}
	records, err := j.readLocked()
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, r := range records {
		if r.Generation <= after {
			continue
		}
		if err := fn(r); err != nil {
			return applied, fmt.Errorf("replaying %s of %s: %w", r.Op, r.ID, err)
		}
		applied++
	}
	return applied, nil
}

// Compact drops records at or below through, which a snapshot now covers.
// Records appended concurrently with the snapshot are kept.
func (j *Journal) Compact(through uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("flushing journal: %w", err)
	}
	records, err := j.readLocked()
	if err != nil {
		return err
	}
	tmpPath := j.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating compacted journal: %w", err)
	}
	bw := bufio.NewWriter(tmp)
	kept := 0
	for _, r := range records {
		if r.Generation <= through {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshaling journal record: %w", err)
		}
		bw.Write(append(data, '\n'))
		kept++
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing compacted journal: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing compacted journal: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, j.path); err != nil {
		return fmt.Errorf("replacing journal: %w", err)
	}
	j.file.Close()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopening journal: %w", err)
	}
	j.file = f
	j.w.Reset(f)
	j.logger.Debug("journal compacted", "through_generation", through, "records_kept", kept)
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.syncLocked(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

func (j *Journal) readLocked() ([]Record, error) {
	f, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("opening journal for reading: %w", err)
	}
	defer f.Close()
	var records []Record
	br := bufio.NewReader(f)
	for line := 1; ; line++ {
		data, err := br.ReadBytes('\n')
		if err == io.EOF {
			if len(data) > 0 {
				j.logger.Warn("ignoring torn journal record", "line", line)
			}
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading journal: %w", err)
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			j.logger.Warn("journal record unreadable, stopping replay", "line", line, "error", err)
			return records, nil
		}
		records = append(records, r)
	}
}
