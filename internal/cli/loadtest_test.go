package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTestReportsStatusCodes(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Query().Get("q")]++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[],"total_hits":0,"cache_hit":true}`))
	}))
	defer srv.Close()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"loadtest", "--url", srv.URL, "--concurrency", "2", "--duration", "200ms", "-q", "fattura"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "status 200:")
	assert.Contains(t, out.String(), "errors:     0")
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 1)
	assert.Positive(t, seen["fattura"])
}

func TestLoadTestFailsWithoutService(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	stats := runLoad(context.Background(), addr, 1, 100*time.Millisecond, []string{"x"})
	assert.Positive(t, stats.errors)
	assert.Empty(t, stats.latencies)
}

func TestLatencyPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), latencyPercentile(lat, 50))
	assert.Equal(t, time.Duration(10), latencyPercentile(lat, 99))
	assert.Equal(t, time.Duration(1), latencyPercentile(lat, 0))
}
