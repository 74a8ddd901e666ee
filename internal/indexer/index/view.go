package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// View is a consistent read-only snapshot pinned at one commit. Queries
// that touch several terms must use a single View and Release it when done;
// until then the store keeps every posting version the view can see.
type View struct {
	s    *Store
	cp   *commitPoint
	once sync.Once
}

func (s *Store) View() *View {
	return &View{s: s, cp: s.readers.acquire(&s.head)}
}

func (v *View) Release() {
	v.once.Do(func() { v.s.readers.release(v.cp.seq) })
}

func (v *View) Seq() uint64 {
	return v.cp.seq
}

func (v *View) Stats() DocStats {
	return v.cp.stats
}

// Documents returns the set of document ordinals live at this view. The
// bitmap is shared and must not be modified.
func (v *View) Documents() *roaring.Bitmap {
	return v.cp.live
}

// DocID maps an ordinal back to its document id.
func (v *View) DocID(ord uint32) string {
	return v.s.ords.id(ord)
}

// Postings returns the postings of term visible at this view, ordered by
// (DocID, Zone).
func (v *View) Postings(term string) PostingList {
	out := v.s.load(term).postings(v.cp.seq)
	if len(out) == 0 {
		return nil
	}
	return out
}

// TermFrequency sums the occurrences of term across visible postings.
func (v *View) TermFrequency(term string) int {
	total := 0
	v.s.load(term).any(v.cp.seq, func(ver *version) bool {
		total += ver.Frequency
		return false
	})
	return total
}

// PrefixMatch returns up to limit visible terms starting with prefix, in
// ascending order. Cost is a binary search plus a scan of the matching run.
func (v *View) PrefixMatch(prefix string, limit int) []string {
	terms := v.s.dict.terms(v.s.hasTerm)
	var out []string
	for i := sort.SearchStrings(terms, prefix); i < len(terms) && strings.HasPrefix(terms[i], prefix); i++ {
		if !v.visible(terms[i]) {
			continue
		}
		out = append(out, terms[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Entries returns every visible term with its postings, sorted by term.
func (v *View) Entries() []TermEntry {
	var terms []string
	for i := range v.s.shards {
		sh := &v.s.shards[i]
		sh.mu.RLock()
		for term := range sh.lists {
			terms = append(terms, term)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(terms)
	entries := make([]TermEntry, 0, len(terms))
	for _, term := range terms {
		if postings := v.Postings(term); len(postings) > 0 {
			entries = append(entries, TermEntry{Term: term, Postings: postings})
		}
	}
	return entries
}

func (v *View) visible(term string) bool {
	return v.s.load(term).any(v.cp.seq, func(*version) bool { return true })
}
