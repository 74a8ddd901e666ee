package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
)

const memoryShards = 16

type MemoryConfig struct {
	// Capacity bounds the number of entries; the oldest are evicted first.
	Capacity int
	TTL      time.Duration
	// JanitorInterval enables a background sweep of expired and stale
	// entries. Zero disables it.
	JanitorInterval time.Duration
	// Generation, when set, lets the janitor drop stale entries. A service
	// that stamps entries with its own generation replaces it through
	// BindGeneration.
	Generation func() uint64
	Clock      clock.Clock
}

type memEntry struct {
	entry   *Entry
	expires time.Time
	elem    *list.Element
}

type memShard struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	order   *list.List
}

// Memory is an in-process sharded cache.
type Memory struct {
	shards   [memoryShards]memShard
	perShard int
	cfg      MemoryConfig
	gen      atomic.Pointer[func() uint64]
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	m := &Memory{
		perShard: max(1, cfg.Capacity/memoryShards),
		cfg:      cfg,
		logger:   slog.Default().With("component", "memory-cache"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*memEntry)
		m.shards[i].order = list.New()
	}
	if cfg.Generation != nil {
		m.BindGeneration(cfg.Generation)
	}
	if cfg.JanitorInterval > 0 {
		go m.janitor()
	} else {
		close(m.done)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string, generation uint64) (*Entry, bool) {
	sh := m.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	me, ok := sh.entries[key]
	if !ok {
		return nil, false
	}
	if me.entry.Generation < generation || m.expired(me) {
		sh.remove(key, me)
		return nil, false
	}
	if me.entry.Generation != generation {
		return nil, false
	}
	return me.entry, true
}

// BindGeneration sets the source the janitor compares entries against. It
// must be the function whose values stamp the stored entries.
func (m *Memory) BindGeneration(fn func() uint64) {
	m.gen.Store(&fn)
}

func (m *Memory) Put(_ context.Context, key string, entry *Entry) {
	sh := m.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if old, ok := sh.entries[key]; ok {
		sh.remove(key, old)
	}
	for sh.order.Len() >= m.perShard {
		oldest := sh.order.Front()
		k := oldest.Value.(string)
		sh.remove(k, sh.entries[k])
	}
	me := &memEntry{entry: entry}
	if m.cfg.TTL > 0 {
		me.expires = m.cfg.Clock.Now().Add(m.cfg.TTL)
	}
	me.elem = sh.order.PushBack(key)
	sh.entries[key] = me
}

func (m *Memory) InvalidateAll(context.Context) error {
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		sh.entries = make(map[string]*memEntry)
		sh.order.Init()
		sh.mu.Unlock()
	}
	return nil
}

func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Sweep removes expired entries and, when a generation source is
// configured, entries from older generations. It returns the number
// removed.
func (m *Memory) Sweep() int {
	var current uint64
	gen := m.gen.Load()
	checkGen := gen != nil
	if checkGen {
		current = (*gen)()
	}
	removed := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for k, me := range sh.entries {
			if m.expired(me) || (checkGen && me.entry.Generation < current) {
				sh.remove(k, me)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Close stops the janitor.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Memory) janitor() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		case <-m.cfg.Clock.After(m.cfg.JanitorInterval):
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("cache sweep", "entries_removed", n)
			}
		}
	}
}

func (m *Memory) expired(me *memEntry) bool {
	return !me.expires.IsZero() && !m.cfg.Clock.Now().Before(me.expires)
}

func (m *Memory) shard(key string) *memShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.shards[h.Sum32()%memoryShards]
}

func (sh *memShard) remove(key string, me *memEntry) {
	sh.order.Remove(me.elem)
	delete(sh.entries, key)
}
