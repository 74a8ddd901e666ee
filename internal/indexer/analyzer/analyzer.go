// Package analyzer turns raw document and query text into normalized terms.
// The pipeline is identical for indexing and querying: optional markup
// stripping, length truncation, Unicode normalization and case folding,
// accent folding, word-boundary tokenization, stop-word removal and
// stemming. Language specifics live behind the Profile interface.
package analyzer

import (
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

// DefaultMaxInputLength bounds the number of runes analyzed per text.
const DefaultMaxInputLength = 1 << 20

// Token is a single normalized term and its position in the source text.
// Positions count every word the tokenizer saw, stop words included, so
// phrase adjacency reflects the original word order.
type Token struct {
	Term     string
	Position int
}

type Options struct {
	MaxInputLength int
	StripMarkup    bool
}

type Analyzer struct {
	profile        Profile
	maxInputLength int
	sanitizer      *bluemonday.Policy
}

func New(profile Profile, opts Options) *Analyzer {
	if opts.MaxInputLength <= 0 {
		opts.MaxInputLength = DefaultMaxInputLength
	}
	a := &Analyzer{
		profile:        profile,
		maxInputLength: opts.MaxInputLength,
	}
	if opts.StripMarkup {
		a.sanitizer = bluemonday.StrictPolicy()
		a.sanitizer.AddSpaceWhenStrippingTag(true)
	}
	return a
}

// NewForProfile looks the profile up in the registry.
func NewForProfile(name string, opts Options) (*Analyzer, error) {
	p, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return New(p, opts), nil
}

func (a *Analyzer) Profile() string {
	return a.profile.Name()
}

// Analyze returns the index terms of text in order. It fails only for text
// that is not valid UTF-8; unknown scripts and stemmer faults degrade to
// unstemmed terms. Analyze is zone-agnostic so queries and documents share
// one pipeline; callers tag each zone's tokens themselves (see
// index.ZoneTokens).
func (a *Analyzer) Analyze(text string) ([]Token, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: input is not valid UTF-8", apperrors.ErrAnalyzerFailure)
	}
	words := a.Words(text)
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		term, ok := a.Term(word)
		if !ok {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: pos})
	}
	return tokens, nil
}

// Words runs the pipeline up to and including tokenization and returns the
// folded words. Prefix queries and suggestions stop here because stemming a
// partial word is meaningless.
func (a *Analyzer) Words(text string) []string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, " ")
	}
	if a.sanitizer != nil {
		text = html.UnescapeString(a.sanitizer.Sanitize(text))
	}
	text = truncateRunes(text, a.maxInputLength)
	text = fold(text)
	return strings.FieldsFunc(text, isSeparator)
}

// Term finishes the pipeline for one folded word. It reports false for stop
// words.
func (a *Analyzer) Term(word string) (string, bool) {
	if a.profile.IsStopWord(word) {
		return "", false
	}
	term := a.stem(word)
	return term, term != ""
}

func (a *Analyzer) stem(word string) (term string) {
	if !stemmable(word) {
		return word
	}
	defer func() {
		if r := recover(); r != nil {
			term = word
		}
	}()
	return a.profile.Stem(word)
}

// fold applies compatibility normalization, lower-casing and accent removal.
// Apostrophes and other punctuation survive here and are treated as
// separators by the tokenizer, which splits elisions such as "l'acqua".
func fold(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// stemmable reports whether every letter of word is Latin script. Other
// scripts pass through unstemmed.
func stemmable(word string) bool {
	for _, r := range word {
		if unicode.IsDigit(r) {
			continue
		}
		if !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
