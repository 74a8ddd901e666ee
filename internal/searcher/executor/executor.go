// Package executor evaluates query expression trees against the posting
// store and returns ranked, paginated results.
package executor

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/tracing"
)

const (
	// checkEvery is how many postings are scanned between cancellation
	// checks.
	checkEvery = 1024
)

type Config struct {
	Weights ranker.Weights
	// MaxPrefixExpansions is the number of terms above which a prefix is
	// logged as wide. Every matching term is still unioned.
	MaxPrefixExpansions int
}

type Result struct {
	Hits       []ranker.ScoredDoc `json:"hits"`
	TotalCount int                `json:"total_count"`
	Seq        uint64             `json:"-"`
}

type Executor struct {
	store  *index.Store
	meta   MetadataLookup
	cfg    Config
	logger *slog.Logger
}

func New(store *index.Store, meta MetadataLookup, cfg Config) *Executor {
	if cfg.MaxPrefixExpansions <= 0 {
		cfg.MaxPrefixExpansions = 256
	}
	return &Executor{
		store:  store,
		meta:   meta,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates node on one consistent view of the index, keeps the
// candidates matching filters, scores them and returns the window
// [offset, offset+limit) of the full ranking. A cancelled context abandons
// the query and returns an error wrapping ErrTimeout.
func (e *Executor) Execute(ctx context.Context, node parser.Node, filters Filters, minRelevance float64, limit, offset int) (*Result, error) {
	start := time.Now()
	view := e.store.View()
	defer view.Release()

	ev := &evaluation{
		ctx:      ctx,
		view:     view,
		cfg:      &e.cfg,
		postings: make(map[string]index.PostingList),
		slotOf:   make(map[string]int),
	}

	ctx, span := tracing.StartChildSpan(ctx, "execute")
	candidates, err := ev.eval(node, false)
	span.End()
	if err != nil {
		return nil, err
	}

	if !filters.Empty() && !candidates.IsEmpty() {
		candidates = e.filter(view, candidates, filters)
	}

	_, span = tracing.StartChildSpan(ctx, "rank")
	acc := ranker.NewAccumulator(e.cfg.Weights, view.Stats(), len(ev.slots))
	for i, terms := range ev.slots {
		for _, term := range terms {
			list := ev.postings[term]
			for j := range list {
				if j%checkEvery == 0 {
					if err := ev.checkCancel(); err != nil {
						span.End()
						return nil, err
					}
				}
				if candidates.Contains(list[j].Ord) {
					acc.Add(i, &list[j])
				}
			}
		}
	}
	if len(ev.wide) > 0 {
		e.logger.Warn("wide prefix expansion",
			"prefixes", ev.wide,
			"threshold", e.cfg.MaxPrefixExpansions,
			"terms_scanned", len(ev.postings),
		)
		span.SetAttr("wide_prefixes", len(ev.wide))
	}
	scored := acc.Results(candidates, view.DocID, minRelevance)
	page := ranker.Page(scored, offset, limit)
	span.SetAttr("candidates", candidates.GetCardinality())
	span.End()

	e.logger.Debug("query executed",
		"query", parser.String(node),
		"seq", view.Seq(),
		"candidates", candidates.GetCardinality(),
		"results", len(scored),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Hits: page, TotalCount: len(scored), Seq: view.Seq()}, nil
}

// Suggest returns up to limit indexed terms starting with prefix, most
// frequent in the corpus first, ties by term. Every matching term is
// considered; a cancelled context abandons the scan. prefix must already be
// folded.
func (e *Executor) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if prefix == "" || limit <= 0 {
		return []string{}, nil
	}
	view := e.store.View()
	defer view.Release()

	terms := view.PrefixMatch(prefix, 0)
	top := make(suggestions, 0, limit+1)
	for i, term := range terms {
		if i%64 == 0 {
			if err := cancelled(ctx); err != nil {
				return nil, err
			}
		}
		heap.Push(&top, suggestion{term: term, freq: view.TermFrequency(term)})
		if top.Len() > limit {
			heap.Pop(&top)
		}
	}
	out := make([]string, top.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&top).(suggestion).term
	}
	return out, nil
}

type suggestion struct {
	term string
	freq int
}

// suggestions is a min-heap on rank, so the weakest suggestion is popped
// first.
type suggestions []suggestion

func (h suggestions) Len() int { return len(h) }
func (h suggestions) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq < h[j].freq
	}
	return h[i].term > h[j].term
}
func (h suggestions) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *suggestions) Push(x any)   { *h = append(*h, x.(suggestion)) }
func (h *suggestions) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

func (e *Executor) filter(view *index.View, candidates *roaring.Bitmap, f Filters) *roaring.Bitmap {
	kept := roaring.New()
	if e.meta == nil {
		return kept
	}
	it := candidates.Iterator()
	for it.HasNext() {
		ord := it.Next()
		m, ok := e.meta.Metadata(view.DocID(ord))
		if ok && f.Match(m) {
			kept.Add(ord)
		}
	}
	return kept
}

// evaluation holds the state of one Execute call. Postings are loaded once
// per term and reused by the scoring pass; slots number the positive query
// terms for coverage counting.
type evaluation struct {
	ctx      context.Context
	view     *index.View
	cfg      *Config
	postings map[string]index.PostingList
	slots    [][]string
	slotOf   map[string]int
	scanned  int
	// wide lists prefixes that expanded past MaxPrefixExpansions.
	wide []string
}

func (ev *evaluation) checkCancel() error {
	return cancelled(ev.ctx)
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: query abandoned: %w", apperrors.ErrTimeout, err)
	}
	return nil
}

func (ev *evaluation) load(term string) (index.PostingList, error) {
	if list, ok := ev.postings[term]; ok {
		return list, nil
	}
	ev.scanned++
	if ev.scanned%64 == 0 {
		if err := ev.checkCancel(); err != nil {
			return nil, err
		}
	}
	list := ev.view.Postings(term)
	ev.postings[term] = list
	return list, nil
}

// score registers terms as one slot unless the node sits under a negation.
func (ev *evaluation) score(key string, terms []string) {
	if _, ok := ev.slotOf[key]; ok {
		return
	}
	ev.slotOf[key] = len(ev.slots)
	ev.slots = append(ev.slots, terms)
}

func (ev *evaluation) eval(n parser.Node, negated bool) (*roaring.Bitmap, error) {
	if err := ev.checkCancel(); err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case *parser.TermNode:
		if n.Prefix {
			return ev.evalPrefix(n, negated)
		}
		list, err := ev.load(n.Term)
		if err != nil {
			return nil, err
		}
		if !negated {
			ev.score(n.Term, []string{n.Term})
		}
		return ordinals(list), nil
	case *parser.PhraseNode:
		lists := make([]index.PostingList, len(n.Terms))
		for i, term := range n.Terms {
			list, err := ev.load(term)
			if err != nil {
				return nil, err
			}
			lists[i] = list
			if !negated {
				ev.score(term, []string{term})
			}
		}
		return matchPhrase(ev.ctx, lists, n.Offsets)
	case *parser.AndNode:
		return ev.evalAnd(n, negated)
	case *parser.OrNode:
		out := roaring.New()
		for _, c := range n.Children {
			set, err := ev.eval(c, negated)
			if err != nil {
				return nil, err
			}
			out.Or(set)
		}
		return out, nil
	case *parser.NotNode:
		set, err := ev.eval(n.Child, !negated)
		if err != nil {
			return nil, err
		}
		out := ev.view.Documents().Clone()
		out.AndNot(set)
		return out, nil
	case nil:
		return roaring.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported query node %T", apperrors.ErrInvalidQuery, n)
	}
}

func (ev *evaluation) evalPrefix(n *parser.TermNode, negated bool) (*roaring.Bitmap, error) {
	terms := ev.view.PrefixMatch(n.Term, 0)
	if len(terms) > ev.cfg.MaxPrefixExpansions {
		ev.wide = append(ev.wide, n.Term)
	}
	out := roaring.New()
	for _, term := range terms {
		list, err := ev.load(term)
		if err != nil {
			return nil, err
		}
		out.Or(ordinals(list))
	}
	if !negated && len(terms) > 0 {
		ev.score(n.Term+"*", terms)
	}
	return out, nil
}

// evalAnd intersects the positive children and subtracts the negated ones.
// An AND with only negated children starts from every live document; an
// empty AND matches nothing.
func (ev *evaluation) evalAnd(n *parser.AndNode, negated bool) (*roaring.Bitmap, error) {
	if len(n.Children) == 0 {
		return roaring.New(), nil
	}
	var out *roaring.Bitmap
	var excluded []parser.Node
	for _, c := range n.Children {
		if not, ok := c.(*parser.NotNode); ok {
			excluded = append(excluded, not.Child)
			continue
		}
		set, err := ev.eval(c, negated)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = set
		} else {
			out.And(set)
		}
	}
	if out == nil {
		out = ev.view.Documents().Clone()
	}
	for _, c := range excluded {
		if out.IsEmpty() {
			break
		}
		set, err := ev.eval(c, !negated)
		if err != nil {
			return nil, err
		}
		out.AndNot(set)
	}
	return out, nil
}

func ordinals(list index.PostingList) *roaring.Bitmap {
	out := roaring.New()
	for i := range list {
		out.Add(list[i].Ord)
	}
	return out
}
