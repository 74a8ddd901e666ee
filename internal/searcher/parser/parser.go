// Package parser turns websearch-style query strings into expression trees.
//
// Whitespace-separated words are combined with an implicit AND. A "quoted
// span" becomes a phrase, a trailing * marks a prefix term, a leading -
// negates a word or phrase and the word OR joins its neighbours into a
// disjunction. Parsing is permissive: an unmatched quote closes at the end
// of input and stray operators are ignored.
package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
)

type Parser struct {
	analyzer  *analyzer.Analyzer
	maxLength int
}

// New returns a parser that normalizes query words with a. A non-positive
// maxLength disables the length check.
func New(a *analyzer.Analyzer, maxLength int) *Parser {
	return &Parser{analyzer: a, maxLength: maxLength}
}

// Analyzer returns the analyzer query words are normalized with.
func (p *Parser) Analyzer() *analyzer.Analyzer {
	return p.analyzer
}

type lexeme struct {
	text    string
	phrase  bool
	negated bool
	or      bool
}

// Parse builds the expression tree for raw. Words that analyze to nothing,
// such as stop words, are dropped; if nothing remains the result is an
// empty AndNode, which matches no document.
func (p *Parser) Parse(raw string) (Node, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.ErrEmptyQuery
	}
	if !utf8.ValidString(raw) {
		return nil, fmt.Errorf("%w: query is not valid UTF-8", apperrors.ErrInvalidQuery)
	}
	if p.maxLength > 0 {
		if n := utf8.RuneCountInString(raw); n > p.maxLength {
			return nil, fmt.Errorf("%w: %d characters, limit %d", apperrors.ErrQueryTooLong, n, p.maxLength)
		}
	}

	var groups [][]Node
	joinNext := false
	for _, lx := range lex(raw) {
		if lx.or {
			joinNext = len(groups) > 0
			continue
		}
		n, err := p.operand(lx)
		if err != nil {
			return nil, err
		}
		if n == nil {
			joinNext = false
			continue
		}
		if lx.negated {
			n = &NotNode{Child: n}
		}
		if joinNext {
			last := len(groups) - 1
			groups[last] = appendUnique(groups[last], n)
		} else {
			groups = append(groups, []Node{n})
		}
		joinNext = false
	}

	var children []Node
	for _, g := range groups {
		if len(g) == 1 {
			children = appendUnique(children, g[0])
		} else {
			children = appendUnique(children, &OrNode{Children: g})
		}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &AndNode{Children: children}, nil
}

func (p *Parser) operand(lx lexeme) (Node, error) {
	if !lx.phrase && strings.HasSuffix(lx.text, "*") {
		return p.prefix(strings.TrimRight(lx.text, "*")), nil
	}
	tokens, err := p.analyzer.Analyze(lx.text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidQuery, err)
	}
	// A bare word the tokenizer splits, such as "e-mail", keeps its word
	// order and is matched as a phrase.
	return phrase(tokens), nil
}

// prefix folds but does not stem the word. Stop words are kept because a
// prefix of a stop word is still a useful prefix.
func (p *Parser) prefix(word string) Node {
	words := p.analyzer.Words(word)
	if len(words) == 0 {
		return nil
	}
	last := &TermNode{Term: words[len(words)-1], Prefix: true}
	var children []Node
	for _, w := range words[:len(words)-1] {
		if term, ok := p.analyzer.Term(w); ok {
			children = appendUnique(children, &TermNode{Term: term})
		}
	}
	if len(children) == 0 {
		return last
	}
	return &AndNode{Children: append(children, last)}
}

func phrase(tokens []analyzer.Token) Node {
	switch len(tokens) {
	case 0:
		return nil
	case 1:
		return &TermNode{Term: tokens[0].Term}
	}
	n := &PhraseNode{
		Terms:   make([]string, len(tokens)),
		Offsets: make([]int, len(tokens)),
	}
	for i, tok := range tokens {
		n.Terms[i] = tok.Term
		n.Offsets[i] = tok.Position - tokens[0].Position
	}
	return n
}

func appendUnique(nodes []Node, n Node) []Node {
	key := String(n)
	for _, existing := range nodes {
		if String(existing) == key {
			return nodes
		}
	}
	return append(nodes, n)
}

func lex(raw string) []lexeme {
	var out []lexeme
	negate := false
	i := 0
	for i < len(raw) {
		r, size := utf8.DecodeRuneInString(raw[i:])
		switch {
		case unicode.IsSpace(r):
			negate = false
			i += size
		case r == '"':
			rest := raw[i+1:]
			end := strings.IndexByte(rest, '"')
			if end < 0 {
				out = append(out, lexeme{text: rest, phrase: true, negated: negate})
				i = len(raw)
			} else {
				out = append(out, lexeme{text: rest[:end], phrase: true, negated: negate})
				i += end + 2
			}
			negate = false
		case r == '-' && !negate:
			negate = true
			i += size
		default:
			start := i
			for i < len(raw) {
				r, size := utf8.DecodeRuneInString(raw[i:])
				if unicode.IsSpace(r) || r == '"' {
					break
				}
				i += size
			}
			word := raw[start:i]
			if strings.EqualFold(word, "or") && !negate {
				out = append(out, lexeme{or: true})
			} else {
				out = append(out, lexeme{text: word, negated: negate})
			}
			negate = false
		}
	}
	return out
}
