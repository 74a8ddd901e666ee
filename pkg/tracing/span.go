// Package tracing times the stages of a request. Spans share a trace
// through the context, and a finished trace is written as one structured
// log record.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

type spanKey struct{}

// trace is shared by every span started under one root.
type trace struct {
	id    string
	mu    sync.Mutex
	spans []*Span
}

type Span struct {
	Name   string
	trace  *trace
	parent *Span
	start  time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    []slog.Attr
}

// StartSpan begins a new trace identified by traceID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, trace: &trace{id: traceID}, start: time.Now()}
	s.trace.spans = append(s.trace.spans, s)
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan begins a span under the one in ctx. Without a parent the
// span still times itself but belongs to no trace.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	s := &Span{Name: name, parent: parent, start: time.Now()}
	if parent != nil {
		s.trace = parent.trace
		s.trace.mu.Lock()
		s.trace.spans = append(s.trace.spans, s)
		s.trace.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
}

func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Log writes the whole trace as a single record: the root's attributes
// plus one group per span holding its duration and attributes.
func (s *Span) Log() {
	slog.Default().LogAttrs(context.Background(), slog.LevelInfo, "trace", s.Attrs()...)
}

// Attrs flattens the trace rooted at s into log attributes.
func (s *Span) Attrs() []slog.Attr {
	if s.trace == nil {
		return s.group(0)
	}
	s.trace.mu.Lock()
	spans := append([]*Span(nil), s.trace.spans...)
	s.trace.mu.Unlock()

	out := []slog.Attr{slog.String("trace_id", s.trace.id)}
	seen := make(map[string]int, len(spans))
	for _, sp := range spans {
		name := sp.Name
		if n := seen[name]; n > 0 {
			name = name + "_" + strconv.Itoa(n)
		}
		seen[sp.Name]++
		out = append(out, slog.Attr{Key: name, Value: slog.GroupValue(sp.group(depth(sp))...)})
	}
	return out
}

func (s *Span) group(depth int) []slog.Attr {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := make([]slog.Attr, 0, len(s.attrs)+2)
	attrs = append(attrs, slog.Float64("ms", float64(s.duration.Microseconds())/1000), slog.Int("depth", depth))
	return append(attrs, s.attrs...)
}

func depth(s *Span) int {
	d := 0
	for p := s.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Sampler decides which finished traces are logged.
type Sampler struct {
	rate float64
}

// NewSampler logs roughly rate of all traces. Zero or less logs none, one
// or more logs all.
func NewSampler(rate float64) Sampler {
	return Sampler{rate: rate}
}

func (s Sampler) Sample() bool {
	switch {
	case s.rate <= 0:
		return false
	case s.rate >= 1:
		return true
	}
	return rand.Float64() < s.rate
}
