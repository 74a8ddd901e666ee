package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo+2, ParseLevel("info+2"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestFromContextCarriesFields(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = With(ctx, "query_id", "q-9")
	sibling := With(WithRequestID(context.Background(), "req-2"), "profile", "italian")
	FromContext(ctx).Info("searched")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "q-9", rec["query_id"])
	assert.NotContains(t, rec, "profile")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "req-2", RequestID(sibling))
}
