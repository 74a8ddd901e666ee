// Package querylog records what users search for. Events are aggregated in
// process for the stats endpoint and optionally shipped to Kafka in batches
// for offline analysis.
package querylog

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventSuggest    EventType = "suggest"
	EventFailed     EventType = "failed"
)

// Event describes one served request.
type Event struct {
	Type      EventType `json:"type"`
	QueryID   string    `json:"query_id"`
	Query     string    `json:"query"`
	Canonical string    `json:"canonical,omitempty"`
	Profile   string    `json:"profile,omitempty"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives events. Track must not block the request path.
type Sink interface {
	Track(Event)
}

type multi []Sink

func (m multi) Track(e Event) {
	for _, s := range m {
		s.Track(e)
	}
}

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Discard drops every event.
type Discard struct{}

func (Discard) Track(Event) {}
