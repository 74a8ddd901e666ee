package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

type metaTable map[string]corpus.Metadata

func (m metaTable) Metadata(id string) (corpus.Metadata, bool) {
	md, ok := m[id]
	return md, ok
}

type fixture struct {
	t        *testing.T
	store    *index.Store
	analyzer *analyzer.Analyzer
	parser   *parser.Parser
	meta     metaTable
	exec     *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newProfileFixture(t, "italian")
}

func newProfileFixture(t *testing.T, profile string) *fixture {
	t.Helper()
	a, err := analyzer.NewForProfile(profile, analyzer.Options{})
	require.NoError(t, err)
	f := &fixture{
		t:        t,
		store:    index.NewStore(),
		analyzer: a,
		parser:   parser.New(a, 512),
		meta:     metaTable{},
	}
	f.exec = New(f.store, f.meta, Config{Weights: ranker.DefaultWeights()})
	return f
}

func (f *fixture) add(id, title, body, category string) {
	f.t.Helper()
	tt, err := f.analyzer.Analyze(title)
	require.NoError(f.t, err)
	bt, err := f.analyzer.Analyze(body)
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.Upsert(id, []index.ZoneTokens{
		{Zone: index.ZoneTitle, Tokens: tt},
		{Zone: index.ZoneBody, Tokens: bt},
	}))
	f.meta[id] = corpus.Metadata{Category: category, Status: corpus.StatusActive}
}

func (f *fixture) search(query string, filters Filters, limit, offset int) *Result {
	f.t.Helper()
	node, err := f.parser.Parse(query)
	require.NoError(f.t, err)
	res, err := f.exec.Execute(context.Background(), node, filters, 0, limit, offset)
	require.NoError(f.t, err)
	return res
}

func hitIDs(res *Result) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.DocID
	}
	return out
}

func italianScenario(t *testing.T) *fixture {
	f := newFixture(t)
	f.add("1", "Fattura elettronica obbligatoria", "", "fisco")
	f.add("2", "", "Dal prossimo anno la fattura e le fatture vengono inviate allo SdI", "news")
	return f
}

func TestItalianScenario(t *testing.T) {
	f := italianScenario(t)

	res := f.search("fattura", Filters{}, 10, 0)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res), "title match ranks first")
	assert.Equal(t, 2, res.TotalCount)
	assert.Greater(t, res.Hits[0].Score, res.Hits[1].Score)
	assert.Equal(t, []index.Zone{index.ZoneTitle}, res.Hits[0].Zones)

	res = f.search(`"fattura elettronica"`, Filters{}, 10, 0)
	assert.Equal(t, []string{"1"}, hitIDs(res))

	res = f.search("fattur*", Filters{}, 10, 0)
	assert.ElementsMatch(t, []string{"1", "2"}, hitIDs(res))
}

func TestPhraseRequiresAdjacencyAndOrder(t *testing.T) {
	f := newFixture(t)
	f.add("a", "", "fattura di cortesia", "")
	f.add("b", "", "cortesia della fattura", "")
	f.add("c", "fattura", "cortesia", "")

	assert.Equal(t, []string{"a"}, hitIDs(f.search(`"fattura di cortesia"`, Filters{}, 10, 0)))
	assert.Equal(t, []string{"b"}, hitIDs(f.search(`"cortesia della fattura"`, Filters{}, 10, 0)))
	assert.Empty(t, hitIDs(f.search(`"fattura cortesia"`, Filters{}, 10, 0)), "the stop word gap is part of the phrase")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, hitIDs(f.search("fattura cortesia", Filters{}, 10, 0)))
}

func TestNotAndOr(t *testing.T) {
	f := newFixture(t)
	f.add("a", "fattura", "", "")
	f.add("b", "fattura bozza", "", "")
	f.add("c", "ricevuta", "", "")

	assert.Equal(t, []string{"a"}, hitIDs(f.search("fattura -bozza", Filters{}, 10, 0)))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, hitIDs(f.search("fattura OR ricevuta", Filters{}, 10, 0)))
	assert.ElementsMatch(t, []string{"a", "c"}, hitIDs(f.search("-bozza", Filters{}, 10, 0)))
}

func TestStopWordOnlyQueryMatchesNothing(t *testing.T) {
	f := italianScenario(t)
	res := f.search("il la", Filters{}, 10, 0)
	assert.Empty(t, res.Hits)
	assert.Zero(t, res.TotalCount)
}

func TestFiltersApplyAfterMatching(t *testing.T) {
	f := italianScenario(t)
	res := f.search("fattura", Filters{Category: "news"}, 10, 0)
	assert.Equal(t, []string{"2"}, hitIDs(res))
	assert.Equal(t, 1, res.TotalCount)

	res = f.search("fattura", Filters{Category: "sport"}, 10, 0)
	assert.Empty(t, res.Hits)
}

func TestMinRelevance(t *testing.T) {
	f := italianScenario(t)
	node, err := f.parser.Parse("fattura")
	require.NoError(t, err)
	all, err := f.exec.Execute(context.Background(), node, Filters{}, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, all.Hits, 2)

	threshold := (all.Hits[0].Relevance + all.Hits[1].Relevance) / 2
	res, err := f.exec.Execute(context.Background(), node, Filters{}, threshold, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, hitIDs(res))
	assert.Equal(t, 1, res.TotalCount)
}

func TestPaginationIsConsistent(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 35; i++ {
		body := "fattura"
		for j := 0; j < i%5; j++ {
			body += " fattura"
		}
		f.add(fmt.Sprintf("doc-%02d", i), "", body+" elettronica", "")
	}
	var concat []ranker.ScoredDoc
	for offset := 0; offset < 30; offset += 10 {
		res := f.search("fattura", Filters{}, 10, offset)
		assert.Equal(t, 35, res.TotalCount)
		concat = append(concat, res.Hits...)
	}
	assert.Equal(t, f.search("fattura", Filters{}, 30, 0).Hits, concat)
	assert.Empty(t, f.search("fattura", Filters{}, 10, 40).Hits)
}

func TestIdempotentReindexKeepsScores(t *testing.T) {
	f := italianScenario(t)
	before := f.search("fattura elettronica", Filters{}, 10, 0)
	f.add("1", "Fattura elettronica obbligatoria", "", "fisco")
	after := f.search("fattura elettronica", Filters{}, 10, 0)
	assert.Equal(t, before.Hits, after.Hits)
}

func TestCancelledQueryReturnsTimeout(t *testing.T) {
	f := italianScenario(t)
	node, err := f.parser.Parse("fattura")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.exec.Execute(ctx, node, Filters{}, 0, 10, 0)
	require.ErrorIs(t, err, apperrors.ErrTimeout)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestSuggestOrdersByFrequency(t *testing.T) {
	f := newProfileFixture(t, "simple")
	f.add("a", "", "fattura fattura fatturato", "")
	f.add("b", "", "fattura fattorino", "")

	got, err := f.exec.Suggest(context.Background(), "fatt", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"fattura", "fattorino", "fatturato"}, got)

	got, err = f.exec.Suggest(context.Background(), "fatt", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"fattura"}, got)

	got, err = f.exec.Suggest(context.Background(), "zzz", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemovedDocumentDisappears(t *testing.T) {
	f := italianScenario(t)
	require.True(t, f.store.Remove("1"))
	assert.Equal(t, []string{"2"}, hitIDs(f.search("fattura", Filters{}, 10, 0)))
	assert.Empty(t, hitIDs(f.search(`"fattura elettronica"`, Filters{}, 10, 0)))
}

func TestWidePrefixUnionsEveryMatchingTerm(t *testing.T) {
	f := newProfileFixture(t, "simple")
	f.exec = New(f.store, f.meta, Config{Weights: ranker.DefaultWeights(), MaxPrefixExpansions: 2})
	var want []string
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("d%d", i)
		f.add(id, "", fmt.Sprintf("fattura%d", i), "")
		want = append(want, id)
	}

	res := f.search("fattura*", Filters{}, 10, 0)
	assert.Equal(t, 6, res.TotalCount)
	assert.ElementsMatch(t, want, hitIDs(res))
}

func TestSuggestConsidersEveryMatchingTerm(t *testing.T) {
	f := newProfileFixture(t, "simple")
	for i := 0; i < 50; i++ {
		f.add(fmt.Sprintf("rare%d", i), "", fmt.Sprintf("nota%02d", i), "")
	}
	f.add("common", "", "notazione notazione notazione", "")

	got, err := f.exec.Suggest(context.Background(), "nota", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"notazione", "nota00"}, got)
}
