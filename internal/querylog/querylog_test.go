package querylog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/kafka"
)

type fakeProducer struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakeProducer) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestCollectorFlushesWhenBatchIsFull(t *testing.T) {
	p := &fakeProducer{}
	c := NewCollector(p, 3, time.Hour)
	for i := 0; i < 3; i++ {
		c.Track(Event{Type: EventSearch, Query: fmt.Sprint(i)})
	}
	assert.Eventually(t, func() bool { return p.published() == 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, c.BufferLen())
}

func TestCollectorRequeuesFailedBatches(t *testing.T) {
	p := &fakeProducer{fail: true}
	c := NewCollector(p, 2, time.Hour)
	c.mu.Lock()
	for i := 0; i < 7; i++ {
		c.buffer = append(c.buffer, kafka.Event{Key: "search", Value: i})
	}
	c.mu.Unlock()

	c.Flush(context.Background())
	assert.Equal(t, 6, c.BufferLen(), "overflow beyond three batches is dropped")

	p.mu.Lock()
	p.fail = false
	p.mu.Unlock()
	c.Flush(context.Background())
	assert.Zero(t, c.BufferLen())
	assert.Equal(t, 6, p.published())
}

func TestCollectorFinalFlushOnCancel(t *testing.T) {
	p := &fakeProducer{}
	c := NewCollector(p, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(Event{Type: EventSearch, Query: "fattura"})
	cancel()
	c.Close()
	assert.Equal(t, 1, p.published())
}

func TestAggregatorStats(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	a := NewAggregator(clk)
	a.Track(Event{Type: EventSearch, Canonical: "fattur", TotalHits: 2, LatencyMs: 4})
	a.Track(Event{Type: EventSearch, Canonical: "fattur", TotalHits: 2, LatencyMs: 2, CacheHit: true})
	a.Track(Event{Type: EventZeroResult, Query: " zebra ", LatencyMs: 6})
	a.Track(Event{Type: EventSuggest, Query: "fat"})
	a.Track(Event{Type: EventFailed, Query: "\"\""})
	clk.Advance(time.Minute)

	s := a.Stats()
	assert.Equal(t, int64(3), s.TotalSearches)
	assert.Equal(t, int64(1), s.TotalSuggestions)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(2), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.InDelta(t, 4.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(4), s.P50LatencyMs)
	require.NotEmpty(t, s.TopQueries)
	assert.Equal(t, QueryCount{Query: "fattur", Count: 2}, s.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "zebra", Count: 1}}, s.ZeroResultQueries)
	assert.InDelta(t, 3.0, s.QueriesPerMinute, 1e-9)
}

func TestMultiSkipsNilSinks(t *testing.T) {
	a := NewAggregator(nil)
	s := Multi(nil, a, Discard{})
	s.Track(Event{Type: EventSuggest})
	assert.Equal(t, int64(1), a.Stats().TotalSuggestions)
}
