package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	Op string `json:"op"`
	ID string `json:"document_id"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg, err := encode(Event{Key: "doc-7", Value: change{Op: "upsert", ID: "doc-7"}}, at)
	require.NoError(t, err)
	assert.Equal(t, "doc-7", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, contentTypeJSON, string(msg.Headers[0].Value))

	got, err := DecodeJSON[change](msg.Value)
	require.NoError(t, err)
	assert.Equal(t, change{Op: "upsert", ID: "doc-7"}, got)
}

func TestEncodeRejectsUnmarshalableValue(t *testing.T) {
	_, err := encode(Event{Key: "k", Value: make(chan int)}, time.Now())
	assert.Error(t, err)
}

func TestDecodeJSONMalformed(t *testing.T) {
	_, err := DecodeJSON[change]([]byte("{"))
	assert.ErrorContains(t, err, "decoding kafka message")
}

func TestRedeliveryBackoffIsCapped(t *testing.T) {
	d := minRedeliveryDelay
	for range 20 {
		d = nextDelay(d)
	}
	assert.Equal(t, maxRedeliveryDelay, d)
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), time.Millisecond))
}
