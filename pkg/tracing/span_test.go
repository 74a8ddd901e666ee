package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceLogsOneRecordWithAllSpans(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx, root := StartSpan(context.Background(), "search", "q-1")
	root.SetAttr("canonical", "fattur")
	ctx, exec := StartChildSpan(ctx, "execute")
	_, rank := StartChildSpan(ctx, "rank")
	rank.SetAttr("candidates", 3)
	rank.End()
	exec.End()
	_, rank2 := StartChildSpan(ctx, "rank")
	rank2.End()
	root.End()
	root.Log()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "q-1", rec["trace_id"])
	search := rec["search"].(map[string]any)
	assert.Equal(t, "fattur", search["canonical"])
	assert.EqualValues(t, 0, search["depth"])
	r := rec["rank"].(map[string]any)
	assert.EqualValues(t, 2, r["depth"])
	assert.EqualValues(t, 3, r["candidates"])
	assert.Contains(t, rec, "rank_1")
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := StartSpan(context.Background(), "x", "t")
	s.End()
	d := s.Duration()
	s.End()
	assert.Equal(t, d, s.Duration())
}

func TestOrphanChildSpan(t *testing.T) {
	_, s := StartChildSpan(context.Background(), "parse")
	s.End()
	assert.Nil(t, s.trace)
	assert.NotEmpty(t, s.Attrs())
}

func TestSamplerBounds(t *testing.T) {
	assert.False(t, NewSampler(0).Sample())
	assert.True(t, NewSampler(1).Sample())
}
