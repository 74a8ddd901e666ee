package index

import (
	"sort"
	"sync/atomic"
)

const (
	// foldMin and foldRatio bound a term's delta: it is merged into the
	// base once delta plus dead versions exceed foldMin + len(base)/foldRatio,
	// which keeps the merge cost amortized constant per published posting.
	foldMin   = 64
	foldRatio = 8
)

// version is one published posting and the commit range [born, died) in
// which it is visible. Only died changes after publication.
type version struct {
	Posting
	born uint64
	died atomic.Uint64
}

func newVersion(p Posting, born uint64) *version {
	v := &version{Posting: p, born: born}
	v.died.Store(alive)
	return v
}

func (v *version) visibleAt(seq uint64) bool {
	return v.born <= seq && seq < v.died.Load()
}

// deadBy reports whether no reader at or after oldest can see v.
func (v *version) deadBy(oldest uint64) bool {
	d := v.died.Load()
	return d != alive && d <= oldest
}

func versionLess(a, b *version) bool {
	return postingLess(&a.Posting, &b.Posting)
}

// termRef lists the versions one document published under one term.
type termRef struct {
	term     string
	versions []*version
}

// termList holds every version of one term. base is sorted by (DocID,
// Zone) and never modified in place; delta collects versions published
// since the last fold in commit order. Both are guarded by the shard lock,
// and readers copy the slice headers, so a later append or fold is never
// observed by a snapshot already taken.
type termList struct {
	base  []*version
	delta []*version
	dead  int
}

func (t *termList) needsFold() bool {
	return len(t.delta)+t.dead > foldMin+len(t.base)/foldRatio
}

func (t *termList) empty() bool {
	return len(t.base) == 0 && len(t.delta) == 0
}

// fold merges delta into base and drops versions dead before oldest. It
// returns the number of versions dropped.
func (t *termList) fold(oldest uint64) int {
	delta := append([]*version(nil), t.delta...)
	sort.Slice(delta, func(i, j int) bool { return versionLess(delta[i], delta[j]) })
	out := make([]*version, 0, len(t.base)+len(delta))
	dropped := 0
	keep := func(v *version) {
		if v.deadBy(oldest) {
			dropped++
			return
		}
		out = append(out, v)
	}
	i, j := 0, 0
	for i < len(t.base) || j < len(delta) {
		if j >= len(delta) || (i < len(t.base) && !versionLess(delta[j], t.base[i])) {
			keep(t.base[i])
			i++
		} else {
			keep(delta[j])
			j++
		}
	}
	t.base = out
	t.delta = nil
	t.dead = 0
	return dropped
}

func (t *termList) snapshot() termSnapshot {
	return termSnapshot{base: t.base, delta: t.delta}
}

type termSnapshot struct {
	base  []*version
	delta []*version
}

func (t termSnapshot) exists() bool {
	return len(t.base) > 0 || len(t.delta) > 0
}

// postings returns the versions visible at seq as a PostingList ordered by
// (DocID, Zone).
func (t termSnapshot) postings(seq uint64) PostingList {
	var out, recent PostingList
	for _, v := range t.base {
		if v.visibleAt(seq) {
			out = append(out, v.Posting)
		}
	}
	for _, v := range t.delta {
		if v.visibleAt(seq) {
			recent = append(recent, v.Posting)
		}
	}
	if len(recent) == 0 {
		return out
	}
	sort.Slice(recent, func(i, j int) bool { return postingLess(&recent[i], &recent[j]) })
	if len(out) == 0 {
		return recent
	}
	merged := make(PostingList, 0, len(out)+len(recent))
	i, j := 0, 0
	for i < len(out) || j < len(recent) {
		if j >= len(recent) || (i < len(out) && postingLess(&out[i], &recent[j])) {
			merged = append(merged, out[i])
			i++
		} else {
			merged = append(merged, recent[j])
			j++
		}
	}
	return merged
}

func (t termSnapshot) any(seq uint64, fn func(*version) bool) bool {
	for _, v := range t.base {
		if v.visibleAt(seq) && fn(v) {
			return true
		}
	}
	for _, v := range t.delta {
		if v.visibleAt(seq) && fn(v) {
			return true
		}
	}
	return false
}
