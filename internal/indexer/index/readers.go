package index

import (
	"sync"
	"sync/atomic"
)

// readerRegistry tracks the commit sequences pinned by open views so
// writers know which dead posting versions are safe to drop.
type readerRegistry struct {
	mu     sync.Mutex
	active map[uint64]int
}

func (r *readerRegistry) acquire(head *atomic.Pointer[commitPoint]) *commitPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := head.Load()
	r.active[cp.seq]++
	return cp
}

func (r *readerRegistry) release(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[seq] <= 1 {
		delete(r.active, seq)
		return
	}
	r.active[seq]--
}

// oldest returns the lowest pinned sequence, or committed when no view is
// open.
func (r *readerRegistry) oldest(committed uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	lowest := committed
	for seq := range r.active {
		if seq < lowest {
			lowest = seq
		}
	}
	return lowest
}

func (r *readerRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.active {
		n += c
	}
	return n
}

type ordinals struct {
	mu   sync.RWMutex
	byID map[string]uint32
	ids  []string
}

func (o *ordinals) assign(id string) uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ord, ok := o.byID[id]; ok {
		return ord
	}
	ord := uint32(len(o.ids))
	o.byID[id] = ord
	o.ids = append(o.ids, id)
	return ord
}

func (o *ordinals) id(ord uint32) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if int(ord) >= len(o.ids) {
		return ""
	}
	return o.ids[ord]
}
