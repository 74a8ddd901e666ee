package index

import (
	"sort"
	"sync"
	"sync/atomic"
)

// dictionary is the sorted term list behind prefix matching. Writers record
// new terms in a pending set; the next reader that needs the sorted list
// merges them in, so bulk indexing does not pay a copy per document.
type dictionary struct {
	mu      sync.Mutex
	sorted  atomic.Pointer[[]string]
	pending map[string]struct{}
	dirty   atomic.Bool
}

func (d *dictionary) init() {
	empty := []string{}
	d.sorted.Store(&empty)
	d.pending = make(map[string]struct{})
}

func (d *dictionary) reset(terms []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sorted.Store(&terms)
	d.pending = make(map[string]struct{})
	d.dirty.Store(false)
}

func (d *dictionary) add(terms []string) {
	if len(terms) == 0 {
		return
	}
	d.mu.Lock()
	for _, t := range terms {
		d.pending[t] = struct{}{}
	}
	d.dirty.Store(true)
	d.mu.Unlock()
}

// invalidate schedules a merge that drops terms whose lists were deleted.
func (d *dictionary) invalidate() {
	d.mu.Lock()
	d.dirty.Store(true)
	d.mu.Unlock()
}

// terms returns the sorted dictionary, merging pending additions and
// dropping terms for which exists reports false.
func (d *dictionary) terms(exists func(string) bool) []string {
	if !d.dirty.Load() {
		return *d.sorted.Load()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty.Load() {
		return *d.sorted.Load()
	}
	added := make([]string, 0, len(d.pending))
	for t := range d.pending {
		added = append(added, t)
	}
	sort.Strings(added)
	cur := *d.sorted.Load()
	merged := make([]string, 0, len(cur)+len(added))
	keep := func(t string) {
		if n := len(merged); n > 0 && merged[n-1] == t {
			return
		}
		if exists(t) {
			merged = append(merged, t)
		}
	}
	i, j := 0, 0
	for i < len(cur) || j < len(added) {
		if j >= len(added) || (i < len(cur) && cur[i] <= added[j]) {
			keep(cur[i])
			i++
		} else {
			keep(added[j])
			j++
		}
	}
	d.sorted.Store(&merged)
	d.pending = make(map[string]struct{})
	d.dirty.Store(false)
	return merged
}
