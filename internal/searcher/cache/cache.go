// Package cache memoizes ranked result pages. Entries are immutable once
// stored and carry the index generation they were computed at; an entry
// whose generation differs from the caller's is a miss. Older entries are
// dropped lazily, while a newer one is kept for the callers that already
// see its generation. TTL expiry runs independently of the generation
// check.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/ranker"
)

const keyPrefix = "search:"

// Entry is one cached result page.
type Entry struct {
	Hits       []ranker.ScoredDoc `json:"hits"`
	TotalCount int                `json:"total_count"`
	Generation uint64             `json:"generation"`
	CreatedAt  time.Time          `json:"created_at"`
}

// Cache stores result pages. Implementations must be safe for concurrent
// use and must never hand out an entry stamped with a generation other
// than the one asked for.
type Cache interface {
	Get(ctx context.Context, key string, generation uint64) (*Entry, bool)
	Put(ctx context.Context, key string, entry *Entry)
	InvalidateAll(ctx context.Context) error
}

// GenerationBinder is implemented by caches that evict stale entries on
// their own and need the generation source their entries are stamped with.
type GenerationBinder interface {
	BindGeneration(fn func() uint64)
}

// KeyParts are the inputs that determine a result page.
type KeyParts struct {
	Query        string
	Category     string
	Source       string
	Status       string
	Profile      string
	MinRelevance float64
	Limit        int
	Offset       int
}

// Key hashes the parts into a fixed-length cache key. Query must already be
// in canonical form.
func Key(p KeyParts) string {
	var b strings.Builder
	for _, part := range []string{
		p.Query, p.Category, p.Source, p.Status, p.Profile,
		strconv.FormatFloat(p.MinRelevance, 'g', -1, 64),
		strconv.Itoa(p.Limit), strconv.Itoa(p.Offset),
	} {
		b.WriteString(strconv.Quote(part))
		b.WriteByte('|')
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// Nop caches nothing.
type Nop struct{}

func (Nop) Get(context.Context, string, uint64) (*Entry, bool) { return nil, false }

func (Nop) Put(context.Context, string, *Entry) {}

func (Nop) InvalidateAll(context.Context) error { return nil }
