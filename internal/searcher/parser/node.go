package parser

import (
	"strings"
)

// Node is a vertex of the query expression tree. Trees are immutable once
// returned by Parse.
type Node interface {
	node()
}

// TermNode matches documents containing Term. A prefix term matches every
// indexed term starting with Term.
type TermNode struct {
	Term   string
	Prefix bool
}

// PhraseNode matches documents where Terms occur in order within one zone.
// Offsets holds each term's position relative to the first, so words dropped
// as stop words still count as gaps.
type PhraseNode struct {
	Terms   []string
	Offsets []int
}

type AndNode struct {
	Children []Node
}

type OrNode struct {
	Children []Node
}

type NotNode struct {
	Child Node
}

func (*TermNode) node()   {}
func (*PhraseNode) node() {}
func (*AndNode) node()    {}
func (*OrNode) node()     {}
func (*NotNode) node()    {}

// String renders the canonical form of n. Equal trees render identically,
// which makes the result usable as a cache key component.
func String(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *TermNode:
		b.WriteString(n.Term)
		if n.Prefix {
			b.WriteByte('*')
		}
	case *PhraseNode:
		b.WriteByte('"')
		next := 0
		for i, term := range n.Terms {
			for ; next < n.Offsets[i]; next++ {
				if next > 0 {
					b.WriteByte(' ')
				}
				b.WriteByte('?')
			}
			if next > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(term)
			next++
		}
		b.WriteByte('"')
	case *AndNode:
		writeList(b, "and", n.Children)
	case *OrNode:
		writeList(b, "or", n.Children)
	case *NotNode:
		b.WriteString("(not ")
		write(b, n.Child)
		b.WriteByte(')')
	case nil:
		b.WriteString("()")
	}
}

func writeList(b *strings.Builder, op string, children []Node) {
	b.WriteByte('(')
	b.WriteString(op)
	for _, c := range children {
		b.WriteByte(' ')
		write(b, c)
	}
	b.WriteByte(')')
}

// Terms returns the distinct plain and phrase terms of n in first-seen
// order. Prefix terms and terms under a NotNode are excluded.
func Terms(n Node) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *TermNode:
			if !n.Prefix && !seen[n.Term] {
				seen[n.Term] = true
				out = append(out, n.Term)
			}
		case *PhraseNode:
			for _, t := range n.Terms {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
		case *AndNode:
			for _, c := range n.Children {
				walk(c)
			}
		case *OrNode:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	walk(n)
	return out
}

// IsEmpty reports whether n can match nothing because every query word was
// dropped during analysis.
func IsEmpty(n Node) bool {
	and, ok := n.(*AndNode)
	return ok && len(and.Children) == 0
}
