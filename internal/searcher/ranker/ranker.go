// Package ranker scores candidate documents and orders result pages.
//
// A document's rank is the sum, over the query terms it contains, of the
// zone-weighted term frequency divided by a length normalization factor,
// multiplied by a bonus for covering more of the query's distinct terms.
// Relevance maps rank onto [0, 1) for thresholding.
package ranker

import (
	"container/heap"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
)

// Weights are the tunable scoring constants.
type Weights struct {
	Title               float64
	Body                float64
	LengthNormalization float64
	CoverageBonus       float64
}

func DefaultWeights() Weights {
	return Weights{
		Title:               3.0,
		Body:                1.0,
		LengthNormalization: 0.75,
		CoverageBonus:       0.5,
	}
}

func (w Weights) Zone(z index.Zone) float64 {
	if z == index.ZoneTitle {
		return w.Title
	}
	return w.Body
}

// TermScore is the contribution of one posting.
func (w Weights) TermScore(p *index.Posting, avgLength float64) float64 {
	return w.Zone(p.Zone) * float64(p.Frequency) / w.norm(p.DocLength, avgLength)
}

func (w Weights) norm(length int, avgLength float64) float64 {
	if avgLength <= 0 {
		return 1
	}
	n := 1 - w.LengthNormalization + w.LengthNormalization*float64(length)/avgLength
	if n <= 0 {
		return 1
	}
	return n
}

// Relevance maps a non-negative rank onto [0, 1).
func Relevance(rank float64) float64 {
	if rank <= 0 {
		return 0
	}
	return rank / (rank + 1)
}

type ScoredDoc struct {
	DocID     string       `json:"doc_id"`
	Score     float64      `json:"score"`
	Relevance float64      `json:"relevance"`
	Zones     []index.Zone `json:"zones,omitempty"`
}

type docScore struct {
	rank    float64
	slot    int
	matched int
	zones   uint8
}

// Accumulator collects posting contributions for one query. Query terms are
// numbered into slots; all postings of a slot must be added before the next
// slot so distinct-term coverage can be counted without a set per document.
type Accumulator struct {
	weights Weights
	avgLen  float64
	slots   int
	docs    map[uint32]*docScore
}

func NewAccumulator(w Weights, stats index.DocStats, slots int) *Accumulator {
	return &Accumulator{
		weights: w,
		avgLen:  stats.AvgLength(),
		slots:   slots,
		docs:    make(map[uint32]*docScore),
	}
}

func (a *Accumulator) Add(slot int, p *index.Posting) {
	d, ok := a.docs[p.Ord]
	if !ok {
		d = &docScore{slot: -1}
		a.docs[p.Ord] = d
	}
	if d.slot != slot {
		d.slot = slot
		d.matched++
	}
	d.rank += a.weights.TermScore(p, a.avgLen)
	d.zones |= 1 << p.Zone
}

// Results scores every candidate and drops those whose relevance is below
// minRelevance. The result is unordered.
func (a *Accumulator) Results(candidates *roaring.Bitmap, docID func(uint32) string, minRelevance float64) []ScoredDoc {
	out := make([]ScoredDoc, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		ord := it.Next()
		sd := ScoredDoc{DocID: docID(ord)}
		if d, ok := a.docs[ord]; ok {
			rank := d.rank
			if a.slots > 0 {
				rank *= 1 + a.weights.CoverageBonus*float64(d.matched)/float64(a.slots)
			}
			sd.Score = round(rank)
			sd.Zones = zones(d.zones)
		}
		sd.Relevance = round(Relevance(sd.Score))
		if sd.Relevance < minRelevance {
			continue
		}
		out = append(out, sd)
	}
	return out
}

func zones(mask uint8) []index.Zone {
	var out []index.Zone
	for z := index.ZoneTitle; z.Valid(); z++ {
		if mask&(1<<z) != 0 {
			out = append(out, z)
		}
	}
	return out
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Less orders by score descending, then document id ascending.
func Less(a, b *ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// Sort orders docs in place.
func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool { return Less(&docs[i], &docs[j]) })
}

// Top returns the k best documents in rank order. A non-positive k sorts
// and returns all of them.
func Top(docs []ScoredDoc, k int) []ScoredDoc {
	if k <= 0 || k >= len(docs) {
		out := append([]ScoredDoc(nil), docs...)
		Sort(out)
		return out
	}
	h := &scoredDocHeap{}
	for _, doc := range docs {
		heap.Push(h, doc)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]ScoredDoc, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(ScoredDoc)
	}
	return out
}

// Page returns the window [offset, offset+limit) of the fully ranked docs.
func Page(docs []ScoredDoc, offset, limit int) []ScoredDoc {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) || limit <= 0 {
		return []ScoredDoc{}
	}
	top := Top(docs, offset+limit)
	return top[offset:]
}

// scoredDocHeap is a min-heap on rank order, so the worst kept document is
// evicted first.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return Less(&h[j], &h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
