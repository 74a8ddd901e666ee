package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

func italianAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewForProfile("italian", Options{})
	require.NoError(t, err)
	return a
}

func terms(t *testing.T, a *Analyzer, text string) []string {
	t.Helper()
	tokens, err := a.Analyze(text)
	require.NoError(t, err)
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Term
	}
	return out
}

func TestAccentAndCaseInvariance(t *testing.T) {
	a := italianAnalyzer(t)
	want := terms(t, a, "citta")
	assert.Equal(t, want, terms(t, a, "Città"))
	assert.Equal(t, want, terms(t, a, "CITTÀ"))
	assert.Equal(t, want, terms(t, a, "cittá"))
}

func TestItalianStemmingConflatesInflections(t *testing.T) {
	a := italianAnalyzer(t)
	assert.Equal(t, []string{"fattur"}, terms(t, a, "fattura"))
	assert.Equal(t, terms(t, a, "fattura"), terms(t, a, "fatture"))
	assert.Equal(t, terms(t, a, "elettronica"), terms(t, a, "elettroniche"))
}

func TestPositionsSkipStopWords(t *testing.T) {
	a := italianAnalyzer(t)
	tokens, err := a.Analyze("Fattura di cortesia, per il cliente")
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 2, tokens[1].Position)
	assert.Equal(t, 5, tokens[2].Position)
}

func TestElisionSplitsOnApostrophe(t *testing.T) {
	a := italianAnalyzer(t)
	tokens, err := a.Analyze("l'acqua dell'anno")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, terms(t, a, "acqua"), []string{tokens[0].Term})
	assert.Equal(t, 1, tokens[0].Position)
	assert.Equal(t, 3, tokens[1].Position)
}

func TestPunctuationDiscarded(t *testing.T) {
	a, err := NewForProfile("simple", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world", "42"}, terms(t, a, "¡Hello, world!! (42)"))
}

func TestSimpleProfileKeepsStopWordsAndInflections(t *testing.T) {
	a, err := NewForProfile("simple", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"la", "fattura"}, terms(t, a, "La fattura"))
}

func TestEnglishProfile(t *testing.T) {
	a, err := NewForProfile("english", Options{})
	require.NoError(t, err)
	assert.Equal(t, terms(t, a, "invoice"), terms(t, a, "the invoices"))
}

func TestTruncationDropsExcess(t *testing.T) {
	a, err := NewForProfile("simple", Options{MaxInputLength: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"abcde"}, terms(t, a, "àbcdefgh ij"))
}

func TestInvalidUTF8IsAnalyzerFailure(t *testing.T) {
	a := italianAnalyzer(t)
	_, err := a.Analyze("fattura \xff\xfe")
	require.ErrorIs(t, err, apperrors.ErrAnalyzerFailure)
}

func TestUnknownScriptPassesThroughUnstemmed(t *testing.T) {
	a := italianAnalyzer(t)
	assert.Equal(t, []string{"привет", "мир"}, terms(t, a, "Привет мир"))
}

type panickyProfile struct{ Simple }

func (panickyProfile) Stem(string) string { panic("stemmer bug") }

func TestStemmerPanicDegradesToUnstemmed(t *testing.T) {
	a := New(panickyProfile{}, Options{})
	assert.Equal(t, []string{"fatture"}, terms(t, a, "fatture"))
}

func TestStripMarkup(t *testing.T) {
	a, err := NewForProfile("simple", Options{StripMarkup: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"fattura", "nota"}, terms(t, a, "<p><b>Fattura</b> &amp; nota</p><script>alert(1)</script>"))
}

func TestWordsDoesNotStem(t *testing.T) {
	a := italianAnalyzer(t)
	assert.Equal(t, []string{"fattura"}, a.Words("Fattura"))
	term, ok := a.Term("di")
	assert.False(t, ok)
	assert.Empty(t, term)
}

func TestDeterministic(t *testing.T) {
	a := italianAnalyzer(t)
	text := strings.Repeat("Fattura elettronica obbligatoria dal 2019. ", 50)
	assert.Equal(t, terms(t, a, text), terms(t, a, text))
}

func TestLookupUnknownProfile(t *testing.T) {
	_, err := Lookup("klingon")
	require.ErrorIs(t, err, apperrors.ErrUnknownProfile)
	assert.Equal(t, []string{"english", "italian", "simple"}, Profiles())
}
