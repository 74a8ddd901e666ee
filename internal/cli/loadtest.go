package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var defaultLoadQueries = []string{
	"fattura",
	"fattura elettronica",
	`"nota di credito"`,
	"fatt*",
	"contratto OR ordine",
	"bilancio -preventivo",
	"verbale riunione",
	"pagamento fornitore",
	"conservazione sostitutiva",
	"codice fiscale",
}

type loadStats struct {
	mu        sync.Mutex
	total     int
	errors    int
	cacheHits int
	latencies []time.Duration
	status    map[int]int
}

func (s *loadStats) record(d time.Duration, status int, cacheHit bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.errors++
		return
	}
	if status < 200 || status >= 300 {
		s.errors++
	}
	if cacheHit {
		s.cacheHits++
	}
	s.latencies = append(s.latencies, d)
	s.status[status]++
}

func newLoadTestCommand() *cobra.Command {
	var (
		baseURL     string
		concurrency int
		duration    time.Duration
		queries     []string
	)
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive concurrent search traffic at a running search service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if concurrency < 1 {
				return errors.New("concurrency must be at least 1")
			}
			if len(queries) == 0 {
				queries = defaultLoadQueries
			}
			cmd.Printf("target %s, %d workers for %s, %d queries\n", baseURL, concurrency, duration, len(queries))
			stats := runLoad(cmd.Context(), baseURL, concurrency, duration, queries)
			printLoadReport(cmd, stats, duration)
			if stats.total == 0 {
				return errors.New("no requests completed; is the service running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the search service")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "query to send (repeatable)")
	return cmd
}

func runLoad(ctx context.Context, baseURL string, concurrency int, duration time.Duration, queries []string) *loadStats {
	stats := &loadStats{status: make(map[int]int)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		next := w
		g.Go(func() error {
			for ctx.Err() == nil {
				q := queries[next%len(queries)]
				next++
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=10", baseURL, url.QueryEscape(q))
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(time.Since(start), 0, false, err)
					}
					continue
				}
				var body struct {
					CacheHit bool `json:"cache_hit"`
				}
				json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()
				stats.record(time.Since(start), resp.StatusCode, body.CacheHit, nil)
			}
			return nil
		})
	}
	g.Wait()
	return stats
}

func printLoadReport(cmd *cobra.Command, s *loadStats, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd.Printf("requests:   %d\n", s.total)
	cmd.Printf("errors:     %d\n", s.errors)
	if s.total > 0 {
		cmd.Printf("error rate: %.2f%%\n", float64(s.errors)/float64(s.total)*100)
		cmd.Printf("rps:        %.2f\n", float64(s.total)/duration.Seconds())
		cmd.Printf("cache hits: %d\n", s.cacheHits)
	}
	if len(s.latencies) > 0 {
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		var sum time.Duration
		for _, l := range s.latencies {
			sum += l
		}
		cmd.Printf("latency:    min %s avg %s p50 %s p95 %s p99 %s max %s\n",
			s.latencies[0],
			sum/time.Duration(len(s.latencies)),
			latencyPercentile(s.latencies, 50),
			latencyPercentile(s.latencies, 95),
			latencyPercentile(s.latencies, 99),
			s.latencies[len(s.latencies)-1],
		)
	}
	codes := make([]int, 0, len(s.status))
	for code := range s.status {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		cmd.Printf("status %d:  %d\n", code, s.status[code])
	}
}

func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
