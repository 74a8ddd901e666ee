package executor

import (
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
)

// Filters restrict results by document metadata. Empty fields match
// anything.
type Filters struct {
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (f Filters) Empty() bool {
	return f == Filters{}
}

func (f Filters) Match(m corpus.Metadata) bool {
	return (f.Category == "" || f.Category == m.Category) &&
		(f.Source == "" || f.Source == m.Source) &&
		(f.Status == "" || f.Status == m.Status)
}

// MetadataLookup resolves a document's metadata. The indexing coordinator
// keeps the table current.
type MetadataLookup interface {
	Metadata(docID string) (corpus.Metadata, bool)
}
