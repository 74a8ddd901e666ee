// Package index implements the in-memory posting store: a multi-version
// inverted index that replaces each document's postings atomically while
// readers keep a consistent view without taking writer locks.
//
// Every published posting carries the commit sequence range [born, died)
// during which it is visible. A writer stamps the document's previous
// versions dead at the next sequence, appends the fresh ones to each term's
// delta and then advances the commit point; readers pin a commit sequence
// for the duration of a query and filter by it, so a multi-term query never
// observes half of an upsert. Replacing or removing a document touches only
// its own terms. Deltas are folded into the sorted base lists once they
// grow past a fraction of the base, and by Compact.
package index

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

const (
	termShards = 64
	docStripes = 256
	alive      = math.MaxUint64
)

// ErrCorruptPostings reports a posting set that violates the store's
// invariants. The store is left at its previous committed state.
var ErrCorruptPostings = fmt.Errorf("%w: invalid postings", apperrors.ErrIndexCorruption)

type termShard struct {
	mu    sync.RWMutex
	lists map[string]*termList
}

// docState is the live state of one document. refs is sorted by term.
type docState struct {
	ord    uint32
	refs   []termRef
	length int
}

// commitPoint is published atomically after every mutation. Readers take
// the sequence, live-document set and corpus statistics from the same value.
type commitPoint struct {
	seq   uint64
	live  *roaring.Bitmap
	stats DocStats
}

type Store struct {
	shards  [termShards]termShard
	stripes [docStripes]sync.Mutex

	commitMu sync.Mutex
	head     atomic.Pointer[commitPoint]

	docsMu sync.RWMutex
	docs   map[string]*docState

	ords    ordinals
	dict    dictionary
	readers readerRegistry
	logger  *slog.Logger
}

func NewStore() *Store {
	s := &Store{
		docs:    make(map[string]*docState),
		ords:    ordinals{byID: make(map[string]uint32)},
		readers: readerRegistry{active: make(map[uint64]int)},
		logger:  slog.Default().With("component", "posting-store"),
	}
	for i := range s.shards {
		s.shards[i].lists = make(map[string]*termList)
	}
	s.dict.init()
	s.head.Store(&commitPoint{live: roaring.New()})
	return s
}

// Upsert replaces every posting of docID with the postings derived from
// zones. Different documents may be upserted concurrently; calls for the
// same document are serialized. On error nothing is published.
func (s *Store) Upsert(docID string, zones []ZoneTokens) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: upsert %s: %v", ErrCorruptPostings, docID, r)
		}
	}()
	dp, err := buildPostings(docID, zones)
	if err != nil {
		return err
	}
	stripe := s.stripe(docID)
	stripe.Lock()
	defer stripe.Unlock()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.publish(docID, dp)
	return nil
}

// Remove deletes every posting of docID. It reports whether the document
// was present.
func (s *Store) Remove(docID string) bool {
	stripe := s.stripe(docID)
	stripe.Lock()
	defer stripe.Unlock()

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if _, ok := s.docs[docID]; !ok {
		return false
	}
	s.publish(docID, nil)
	return true
}

// PostingsFor returns the postings of term at the latest commit.
func (s *Store) PostingsFor(term string) PostingList {
	v := s.View()
	defer v.Release()
	return v.Postings(term)
}

// PrefixMatch returns up to limit terms starting with prefix in ascending
// order. A non-positive limit means no limit.
func (s *Store) PrefixMatch(prefix string, limit int) []string {
	v := s.View()
	defer v.Release()
	return v.PrefixMatch(prefix, limit)
}

func (s *Store) HasDocument(docID string) bool {
	s.docsMu.RLock()
	defer s.docsMu.RUnlock()
	_, ok := s.docs[docID]
	return ok
}

// DocumentTerms returns the distinct terms currently indexed for docID.
func (s *Store) DocumentTerms(docID string) []string {
	s.docsMu.RLock()
	defer s.docsMu.RUnlock()
	st, ok := s.docs[docID]
	if !ok {
		return nil
	}
	terms := make([]string, len(st.refs))
	for i, ref := range st.refs {
		terms[i] = ref.term
	}
	return terms
}

func (s *Store) DocCount() int {
	return s.head.Load().stats.Documents
}

// TermCount counts terms that still hold any posting version.
func (s *Store) TermCount() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.lists)
		sh.mu.RUnlock()
	}
	return n
}

// Seq returns the latest commit sequence.
func (s *Store) Seq() uint64 {
	return s.head.Load().seq
}

// Compact folds every term's delta into its base and drops posting
// versions no active reader can see. It returns the number of versions
// removed.
func (s *Store) Compact() int {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	oldest := s.readers.oldest(s.head.Load().seq)
	removed := 0
	emptied := false
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for term, list := range sh.lists {
			removed += list.fold(oldest)
			if list.empty() {
				delete(sh.lists, term)
				emptied = true
			}
		}
		sh.mu.Unlock()
	}
	if emptied {
		s.dict.invalidate()
	}
	if removed > 0 {
		s.logger.Debug("store compacted", "versions_removed", removed, "oldest_reader", oldest)
	}
	return removed
}

// Load bulk-populates an empty store from snapshot entries.
func (s *Store) Load(entries []TermEntry) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if s.head.Load().seq != 0 || len(s.docs) != 0 {
		return fmt.Errorf("loading snapshot: store is not empty")
	}
	const seq = 1
	docs := make(map[string]*docState)
	lists := make(map[string][]*version, len(entries))
	terms := make([]string, 0, len(entries))
	live := roaring.New()
	var stats DocStats
	for _, entry := range entries {
		if entry.Term == "" || len(entry.Postings) == 0 {
			return fmt.Errorf("%w: empty snapshot entry", ErrCorruptPostings)
		}
		if _, dup := lists[entry.Term]; dup {
			return fmt.Errorf("%w: duplicate term %q", ErrCorruptPostings, entry.Term)
		}
		list := make([]*version, 0, len(entry.Postings))
		for i := range entry.Postings {
			p := entry.Postings[i]
			if err := validatePosting(&p); err != nil {
				return fmt.Errorf("term %q: %w", entry.Term, err)
			}
			if i > 0 && !postingLess(&entry.Postings[i-1], &p) {
				return fmt.Errorf("%w: term %q postings out of order", ErrCorruptPostings, entry.Term)
			}
			st, ok := docs[p.DocID]
			if !ok {
				st = &docState{ord: s.ords.assign(p.DocID), length: p.DocLength}
				docs[p.DocID] = st
				live.Add(st.ord)
				stats.Documents++
				stats.TotalLength += int64(p.DocLength)
			} else if st.length != p.DocLength {
				return fmt.Errorf("%w: document %s has inconsistent lengths", ErrCorruptPostings, p.DocID)
			}
			p.Ord = st.ord
			v := newVersion(p, seq)
			if n := len(st.refs); n == 0 || st.refs[n-1].term != entry.Term {
				st.refs = append(st.refs, termRef{term: entry.Term})
			}
			ref := &st.refs[len(st.refs)-1]
			ref.versions = append(ref.versions, v)
			list = append(list, v)
		}
		lists[entry.Term] = list
		terms = append(terms, entry.Term)
	}
	for term, list := range lists {
		sh := s.shard(term)
		sh.mu.Lock()
		sh.lists[term] = &termList{base: list}
		sh.mu.Unlock()
	}
	for _, st := range docs {
		sort.Slice(st.refs, func(i, j int) bool { return st.refs[i].term < st.refs[j].term })
	}
	sort.Strings(terms)
	s.dict.reset(terms)
	s.docsMu.Lock()
	s.docs = docs
	s.docsMu.Unlock()
	s.head.Store(&commitPoint{seq: seq, live: live, stats: stats})
	return nil
}

// publish must be called with commitMu held. dp == nil removes the
// document. The previous versions are stamped dead at the new sequence and
// the fresh ones appended; neither is visible to readers until the head
// advances. Work is proportional to the document's own postings plus the
// amortized fold of the terms it touches.
func (s *Store) publish(docID string, dp *docPostings) {
	head := s.head.Load()
	seq := head.seq + 1
	oldest := s.readers.oldest(head.seq)

	prev := s.docs[docID]
	var ord uint32
	if prev != nil {
		ord = prev.ord
	} else {
		ord = s.ords.assign(docID)
	}
	var refs []termRef
	if dp != nil {
		refs = make([]termRef, 0, len(dp.terms))
		for _, term := range dp.terms {
			ps := dp.byTerm[term]
			vs := make([]*version, len(ps))
			for i := range ps {
				p := ps[i]
				p.Ord = ord
				vs[i] = newVersion(p, seq)
			}
			refs = append(refs, termRef{term: term, versions: vs})
		}
	}
	var prevRefs []termRef
	if prev != nil {
		prevRefs = prev.refs
		for _, ref := range prevRefs {
			for _, v := range ref.versions {
				v.died.Store(seq)
			}
		}
	}

	emptied := false
	i, j := 0, 0
	for i < len(prevRefs) || j < len(refs) {
		var term string
		var dead int
		var fresh []*version
		switch {
		case j >= len(refs) || (i < len(prevRefs) && prevRefs[i].term < refs[j].term):
			term, dead = prevRefs[i].term, len(prevRefs[i].versions)
			i++
		case i >= len(prevRefs) || refs[j].term < prevRefs[i].term:
			term, fresh = refs[j].term, refs[j].versions
			j++
		default:
			term, dead, fresh = refs[j].term, len(prevRefs[i].versions), refs[j].versions
			i++
			j++
		}
		if s.apply(term, dead, fresh, oldest) {
			emptied = true
		}
	}
	if dp != nil {
		s.dict.add(dp.terms)
	}
	if emptied {
		s.dict.invalidate()
	}

	live := head.live
	stats := head.stats
	s.docsMu.Lock()
	switch {
	case dp == nil:
		delete(s.docs, docID)
		live = live.Clone()
		live.Remove(ord)
		stats.Documents--
		stats.TotalLength -= int64(prev.length)
	case prev == nil:
		s.docs[docID] = &docState{ord: ord, refs: refs, length: dp.length}
		live = live.Clone()
		live.Add(ord)
		stats.Documents++
		stats.TotalLength += int64(dp.length)
	default:
		s.docs[docID] = &docState{ord: ord, refs: refs, length: dp.length}
		stats.TotalLength += int64(dp.length - prev.length)
	}
	s.docsMu.Unlock()
	s.head.Store(&commitPoint{seq: seq, live: live, stats: stats})
}

// apply records dead versions and appends fresh ones for one term, folding
// the list when its delta has grown. It reports whether the term was
// emptied and deleted.
func (s *Store) apply(term string, dead int, fresh []*version, oldest uint64) bool {
	sh := s.shard(term)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	list := sh.lists[term]
	if list == nil {
		list = &termList{}
		sh.lists[term] = list
	}
	list.dead += dead
	list.delta = append(list.delta, fresh...)
	if !list.needsFold() {
		return false
	}
	list.fold(oldest)
	if list.empty() {
		delete(sh.lists, term)
		return true
	}
	return false
}

func (s *Store) load(term string) termSnapshot {
	sh := s.shard(term)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	list := sh.lists[term]
	if list == nil {
		return termSnapshot{}
	}
	return list.snapshot()
}

func (s *Store) hasTerm(term string) bool {
	return s.load(term).exists()
}

func (s *Store) shard(term string) *termShard {
	h := fnv.New32a()
	h.Write([]byte(term))
	return &s.shards[h.Sum32()%termShards]
}

func (s *Store) stripe(docID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(docID))
	return &s.stripes[h.Sum32()%docStripes]
}

type docPostings struct {
	terms  []string
	byTerm map[string][]Posting
	length int
}

type termZone struct {
	term string
	zone Zone
}

func buildPostings(docID string, zones []ZoneTokens) (*docPostings, error) {
	if docID == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrCorruptPostings)
	}
	seen := make(map[Zone]bool, len(zones))
	occurrences := make(map[termZone][]int)
	length := 0
	for _, zt := range zones {
		if !zt.Zone.Valid() {
			return nil, fmt.Errorf("%w: document %s: invalid zone %d", ErrCorruptPostings, docID, uint8(zt.Zone))
		}
		if seen[zt.Zone] {
			return nil, fmt.Errorf("%w: document %s: zone %s supplied twice", ErrCorruptPostings, docID, zt.Zone)
		}
		seen[zt.Zone] = true
		for _, tok := range zt.Tokens {
			if tok.Term == "" || tok.Position < 0 {
				return nil, fmt.Errorf("%w: document %s: malformed token %+v", ErrCorruptPostings, docID, tok)
			}
			k := termZone{term: tok.Term, zone: zt.Zone}
			occurrences[k] = append(occurrences[k], tok.Position)
		}
		length += len(zt.Tokens)
	}

	dp := &docPostings{byTerm: make(map[string][]Posting), length: length}
	for k, positions := range occurrences {
		sort.Ints(positions)
		for i := 1; i < len(positions); i++ {
			if positions[i] == positions[i-1] {
				return nil, fmt.Errorf("%w: document %s: term %q repeats position %d", ErrCorruptPostings, docID, k.term, positions[i])
			}
		}
		dp.byTerm[k.term] = append(dp.byTerm[k.term], Posting{
			DocID:     docID,
			Zone:      k.zone,
			Frequency: len(positions),
			Positions: positions,
			DocLength: length,
		})
	}
	dp.terms = make([]string, 0, len(dp.byTerm))
	for term, list := range dp.byTerm {
		sort.Slice(list, func(i, j int) bool { return list[i].Zone < list[j].Zone })
		dp.terms = append(dp.terms, term)
	}
	sort.Strings(dp.terms)
	return dp, nil
}

func validatePosting(p *Posting) error {
	if p.DocID == "" || !p.Zone.Valid() || p.Frequency != len(p.Positions) || p.Frequency == 0 || p.DocLength < 0 {
		return fmt.Errorf("%w: malformed posting for %q", ErrCorruptPostings, p.DocID)
	}
	for i, pos := range p.Positions {
		if pos < 0 || (i > 0 && pos <= p.Positions[i-1]) {
			return fmt.Errorf("%w: positions of %q not strictly ascending", ErrCorruptPostings, p.DocID)
		}
	}
	return nil
}
