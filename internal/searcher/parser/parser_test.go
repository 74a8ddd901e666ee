package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

func newParser(t *testing.T, profile string) *Parser {
	t.Helper()
	a, err := analyzer.NewForProfile(profile, analyzer.Options{})
	require.NoError(t, err)
	return New(a, 64)
}

func parse(t *testing.T, p *Parser, raw string) string {
	t.Helper()
	n, err := p.Parse(raw)
	require.NoError(t, err)
	return String(n)
}

func TestParseRejectsEmptyAndLongQueries(t *testing.T) {
	p := newParser(t, "simple")
	for _, raw := range []string{"", "   ", "\t\n"} {
		_, err := p.Parse(raw)
		require.ErrorIs(t, err, apperrors.ErrEmptyQuery)
		require.ErrorIs(t, err, apperrors.ErrInvalidQuery)
	}

	_, err := p.Parse(strings.Repeat("a", 65))
	require.ErrorIs(t, err, apperrors.ErrQueryTooLong)

	_, err = p.Parse(strings.Repeat("à", 64))
	require.NoError(t, err, "limit counts characters, not bytes")

	_, err = p.Parse("fattura \xff")
	require.ErrorIs(t, err, apperrors.ErrInvalidQuery)
}

func TestImplicitAnd(t *testing.T) {
	p := newParser(t, "simple")
	assert.Equal(t, "(and fattura elettronica)", parse(t, p, "Fattura  ELETTRONICA"))
	assert.Equal(t, "fattura", parse(t, p, "fattura"))
}

func TestPhrase(t *testing.T) {
	p := newParser(t, "simple")
	n, err := p.Parse(`"fattura elettronica" obbligatoria`)
	require.NoError(t, err)
	and, ok := n.(*AndNode)
	require.True(t, ok)
	require.Len(t, and.Children, 2)
	assert.Equal(t, &PhraseNode{Terms: []string{"fattura", "elettronica"}, Offsets: []int{0, 1}}, and.Children[0])
	assert.Equal(t, &TermNode{Term: "obbligatoria"}, and.Children[1])

	assert.Equal(t, "fattura", parse(t, p, `"fattura"`), "single-term phrase collapses")
}

func TestPhraseKeepsStopWordGaps(t *testing.T) {
	p := newParser(t, "italian")
	n, err := p.Parse(`"fattura di cortesia"`)
	require.NoError(t, err)
	ph, ok := n.(*PhraseNode)
	require.True(t, ok)
	assert.Equal(t, []int{0, 2}, ph.Offsets)
	assert.Equal(t, "fattur", ph.Terms[0])
	assert.Equal(t, `"fattur ? `+ph.Terms[1]+`"`, String(n))
}

func TestUnmatchedQuoteClosesAtEnd(t *testing.T) {
	p := newParser(t, "simple")
	assert.Equal(t, `(and nota "fattura elettronica")`, parse(t, p, `nota "fattura elettronica`))
}

func TestPrefixIsFoldedNotStemmed(t *testing.T) {
	p := newParser(t, "italian")
	assert.Equal(t, &TermNode{Term: "fattur", Prefix: true}, mustParse(t, p, "FATTUR*"))
	assert.Equal(t, &TermNode{Term: "citta", Prefix: true}, mustParse(t, p, "città*"))
	assert.Equal(t, &TermNode{Term: "di", Prefix: true}, mustParse(t, p, "di*"), "stop words still expand as prefixes")
	assert.True(t, IsEmpty(mustParse(t, p, "*")))
}

func TestStopWordsDropped(t *testing.T) {
	p := newParser(t, "italian")
	assert.Equal(t, "fattur", parse(t, p, "la fattura"))
	assert.True(t, IsEmpty(mustParse(t, p, "il la di")))
	assert.Equal(t, "fattur", parse(t, p, "fattura fatture"), "duplicate terms collapse")
}

func TestOrAndNot(t *testing.T) {
	p := newParser(t, "simple")
	assert.Equal(t, "(and nota (or fattura ricevuta))", parse(t, p, "nota fattura OR ricevuta"))
	assert.Equal(t, "(and fattura (not bozza))", parse(t, p, "fattura -bozza"))
	assert.Equal(t, `(and fattura (not "carta bollata"))`, parse(t, p, `fattura -"carta bollata"`))
	assert.Equal(t, "fattura", parse(t, p, "OR fattura OR"))
	assert.Equal(t, `"e mail"`, parse(t, p, "e-mail"))
}

func TestCanonicalFormIsStable(t *testing.T) {
	p := newParser(t, "italian")
	assert.Equal(t, parse(t, p, "Fattura   elettronica"), parse(t, p, "fattura elettronica"))
	assert.Equal(t, parse(t, p, "Società"), parse(t, p, "societa"))
}

func TestTermsCollectsPositiveTerms(t *testing.T) {
	p := newParser(t, "simple")
	n := mustParse(t, p, `"fattura elettronica" fattura nota* -bozza`)
	assert.Equal(t, []string{"fattura", "elettronica"}, Terms(n))
}

func mustParse(t *testing.T, p *Parser, raw string) Node {
	t.Helper()
	n, err := p.Parse(raw)
	require.NoError(t, err)
	return n
}
