package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
)

// Zone is a weighted region of a document.
type Zone uint8

const (
	ZoneTitle Zone = iota
	ZoneBody
)

var zoneNames = [...]string{ZoneTitle: "title", ZoneBody: "body"}

func (z Zone) String() string {
	if int(z) < len(zoneNames) {
		return zoneNames[z]
	}
	return fmt.Sprintf("zone(%d)", uint8(z))
}

func (z Zone) Valid() bool {
	return int(z) < len(zoneNames)
}

func (z Zone) MarshalText() ([]byte, error) {
	if !z.Valid() {
		return nil, fmt.Errorf("invalid zone %d", uint8(z))
	}
	return []byte(z.String()), nil
}

func (z *Zone) UnmarshalText(b []byte) error {
	parsed, err := ParseZone(string(b))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}

func ParseZone(s string) (Zone, error) {
	for i, name := range zoneNames {
		if name == s {
			return Zone(i), nil
		}
	}
	return 0, fmt.Errorf("unknown zone %q", s)
}

// Posting records the occurrences of one term in one zone of one document.
// DocLength is the token count of the whole document and feeds length
// normalization at query time. Postings are immutable once published.
type Posting struct {
	DocID     string `json:"d"`
	Zone      Zone   `json:"z"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p"`
	DocLength int    `json:"l"`
	Ord       uint32 `json:"-"`
}

// PostingList is ordered by (DocID, Zone).
type PostingList []Posting

type TermEntry struct {
	Term     string      `json:"t"`
	Postings PostingList `json:"p"`
}

// ZoneTokens is the analyzer output for one zone of a document.
type ZoneTokens struct {
	Zone   Zone
	Tokens []analyzer.Token
}

type DocStats struct {
	Documents   int
	TotalLength int64
}

func (s DocStats) AvgLength() float64 {
	if s.Documents == 0 {
		return 0
	}
	return float64(s.TotalLength) / float64(s.Documents)
}

func postingLess(a, b *Posting) bool {
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	return a.Zone < b.Zone
}
