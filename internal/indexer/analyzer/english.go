package analyzer

import porterstemmer "github.com/reiver/go-porterstemmer"

// English stems with the Porter algorithm.
type English struct {
	stop map[string]struct{}
}

func NewEnglish() *English {
	return &English{stop: stopSet(englishStopWords)}
}

func (*English) Name() string { return "english" }

func (p *English) IsStopWord(word string) bool {
	_, ok := p.stop[word]
	return ok
}

func (*English) Stem(word string) string {
	return porterstemmer.StemString(word)
}

var englishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has",
	"he", "in", "is", "it", "its", "of", "on", "or", "that", "the", "to",
	"was", "were", "will", "with", "this", "but", "they", "have", "had",
	"what", "when", "where", "who", "which", "their", "if", "each", "do",
	"not", "no", "so", "can", "s", "t",
}
