// Package searcher is the query-side facade of the engine. It parses free
// text, serves ranked pages through the result cache and reports every
// request to metrics and the query log.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/querylog"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/tracing"
)

// Backend is the index side the service reads from and administers.
type Backend interface {
	executor.MetadataLookup
	Generation() uint64
	Reindex(ctx context.Context, ids []string) (indexer.ReindexReport, error)
}

type Config struct {
	Profile        string
	Analyzer       analyzer.Options
	MaxQueryLength int
	DefaultLimit   int
	MaxLimit       int
	QueryTimeout   time.Duration
	Executor       executor.Config
	TraceSampling  float64
}

// ConfigFrom maps the application config onto the service.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Profile: cfg.Analyzer.Profile,
		Analyzer: analyzer.Options{
			MaxInputLength: cfg.Analyzer.MaxInputLength,
			StripMarkup:    cfg.Analyzer.StripMarkup,
		},
		MaxQueryLength: cfg.Search.MaxQueryLength,
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		QueryTimeout:   cfg.Search.QueryTimeout,
		Executor: executor.Config{
			Weights: ranker.Weights{
				Title:               cfg.Search.TitleWeight,
				Body:                cfg.Search.BodyWeight,
				LengthNormalization: cfg.Search.LengthNormalization,
				CoverageBonus:       cfg.Search.CoverageBonus,
			},
			MaxPrefixExpansions: cfg.Search.MaxPrefixExpansions,
		},
		TraceSampling: traceRate(cfg.Tracing),
	}
}

func traceRate(t config.TracingConfig) float64 {
	if !t.Enabled {
		return 0
	}
	return t.SampleRate
}

// Request is one search call. Zero Limit means the configured default.
type Request struct {
	Query        string           `json:"query"`
	Filters      executor.Filters `json:"filters"`
	Profile      string           `json:"profile,omitempty"`
	Limit        int              `json:"limit,omitempty"`
	Offset       int              `json:"offset,omitempty"`
	MinRelevance float64          `json:"min_relevance,omitempty"`
}

type Result struct {
	DocumentID     string   `json:"document_id"`
	RankScore      float64  `json:"rank_score"`
	RelevanceScore float64  `json:"relevance_score"`
	MatchedZones   []string `json:"matched_zones"`
}

type SearchResult struct {
	QueryID    string        `json:"query_id"`
	Results    []Result      `json:"results"`
	TotalCount int           `json:"total_count"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	CacheHit   bool          `json:"cache_hit"`
}

type Service struct {
	backend  Backend
	exec     *executor.Executor
	querier  *cache.Querier
	cfg      Config
	metrics  *metrics.Metrics
	events   querylog.Sink
	sampler  tracing.Sampler
	parsers  sync.Map
	epoch    atomic.Uint64
	logger   *slog.Logger
	defaultP *parser.Parser
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithQueryLog(sink querylog.Sink) Option {
	return func(s *Service) { s.events = sink }
}

// New wires a service over store. A nil cache disables caching.
func New(store *index.Store, backend Backend, c cache.Cache, cfg Config, opts ...Option) (*Service, error) {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.Profile == "" {
		cfg.Profile = "simple"
	}
	if cfg.Executor.Weights == (ranker.Weights{}) {
		cfg.Executor.Weights = ranker.DefaultWeights()
	}
	s := &Service{
		backend: backend,
		exec:    executor.New(store, backend, cfg.Executor),
		cfg:     cfg,
		events:  querylog.Discard{},
		sampler: tracing.NewSampler(cfg.TraceSampling),
		logger:  slog.Default().With("component", "search-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if b, ok := c.(cache.GenerationBinder); ok {
		b.BindGeneration(s.cacheGeneration)
	}
	s.querier = cache.NewQuerier(c, s.cacheGeneration)
	p, err := s.parserFor(cfg.Profile)
	if err != nil {
		return nil, err
	}
	s.defaultP = p
	return s, nil
}

// cacheGeneration advances with every index change and every explicit
// invalidation, so either makes all cached pages stale.
func (s *Service) cacheGeneration() uint64 {
	return s.backend.Generation() + s.epoch.Load()
}

func (s *Service) parserFor(profile string) (*parser.Parser, error) {
	if p, ok := s.parsers.Load(profile); ok {
		return p.(*parser.Parser), nil
	}
	a, err := analyzer.NewForProfile(profile, s.cfg.Analyzer)
	if err != nil {
		return nil, err
	}
	p, _ := s.parsers.LoadOrStore(profile, parser.New(a, s.cfg.MaxQueryLength))
	return p.(*parser.Parser), nil
}

// Search parses, executes and ranks req.Query and returns the requested
// page. Identical requests at the same generation are served from cache.
func (s *Service) Search(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	queryID := uuid.NewString()
	ctx = logger.With(ctx, "query_id", queryID)
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "search", queryID)
	defer func() {
		span.End()
		if s.sampler.Sample() {
			span.Log()
		}
	}()

	if req.Profile == "" {
		req.Profile = s.cfg.Profile
	}
	limit, err := s.normalize(&req)
	if err != nil {
		s.fail(queryID, req, start, "invalid", err)
		return nil, err
	}
	p, err := s.parserFor(req.Profile)
	if err != nil {
		s.fail(queryID, req, start, "invalid", err)
		return nil, err
	}
	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	node, err := p.Parse(req.Query)
	parseSpan.End()
	if err != nil {
		s.fail(queryID, req, start, "invalid", err)
		return nil, err
	}
	canonical := parser.String(node)
	span.SetAttr("canonical", canonical)

	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	key := cache.Key(cache.KeyParts{
		Query:        canonical,
		Category:     req.Filters.Category,
		Source:       req.Filters.Source,
		Status:       req.Filters.Status,
		Profile:      req.Profile,
		MinRelevance: req.MinRelevance,
		Limit:        limit,
		Offset:       req.Offset,
	})
	entry, hit, err := s.querier.GetOrCompute(ctx, key, func(ctx context.Context) (*cache.Entry, error) {
		res, err := s.exec.Execute(ctx, node, req.Filters, req.MinRelevance, limit, req.Offset)
		if err != nil {
			return nil, err
		}
		return &cache.Entry{Hits: res.Hits, TotalCount: res.TotalCount}, nil
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, apperrors.ErrTimeout) {
			outcome = "timeout"
		}
		s.fail(queryID, req, start, outcome, err)
		log.Warn("search failed", "query", req.Query, "error", err)
		return nil, err
	}

	result := &SearchResult{
		QueryID:    queryID,
		Results:    toResults(entry.Hits),
		TotalCount: entry.TotalCount,
		Elapsed:    time.Since(start),
		CacheHit:   hit,
	}
	s.observe(queryID, req, canonical, result)
	log.Info("search completed",
		"query", req.Query,
		"canonical", canonical,
		"total_hits", result.TotalCount,
		"returned", len(result.Results),
		"cache_hit", hit,
		"latency_ms", result.Elapsed.Milliseconds(),
	)
	return result, nil
}

// normalize applies limit defaults and rejects out-of-range paging.
func (s *Service) normalize(req *Request) (int, error) {
	if req.Offset < 0 {
		return 0, fmt.Errorf("%w: offset must not be negative", apperrors.ErrInvalidInput)
	}
	if req.Limit < 0 {
		return 0, fmt.Errorf("%w: limit must not be negative", apperrors.ErrInvalidInput)
	}
	if req.MinRelevance < 0 || req.MinRelevance >= 1 {
		return 0, fmt.Errorf("%w: min_relevance must be within [0,1)", apperrors.ErrInvalidInput)
	}
	limit := req.Limit
	if limit == 0 {
		limit = s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit), nil
}

func toResults(hits []ranker.ScoredDoc) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		zones := make([]string, len(h.Zones))
		for j, z := range h.Zones {
			zones[j] = z.String()
		}
		out[i] = Result{
			DocumentID:     h.DocID,
			RankScore:      h.Score,
			RelevanceScore: h.Relevance,
			MatchedZones:   zones,
		}
	}
	return out
}

// Suggest completes the last word of partial with index terms ordered by
// corpus frequency.
func (s *Service) Suggest(ctx context.Context, partial string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	limit = min(limit, s.cfg.MaxLimit)
	words := s.defaultP.Analyzer().Words(partial)
	if len(words) == 0 {
		return []string{}, nil
	}
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}
	out, err := s.exec.Suggest(ctx, words[len(words)-1], limit)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SuggestionsTotal.Inc()
	}
	s.events.Track(querylog.Event{
		Type:      querylog.EventSuggest,
		Query:     partial,
		Returned:  len(out),
		Timestamp: time.Now().UTC(),
	})
	return out, nil
}

// Reindex re-derives postings for ids, or the whole corpus when ids is
// empty. Every document it changes advances the generation, so no explicit
// cache invalidation is needed.
func (s *Service) Reindex(ctx context.Context, ids []string) (indexer.ReindexReport, error) {
	return s.backend.Reindex(ctx, ids)
}

// InvalidateCache makes every cached page stale and clears the backing
// store. Staleness does not depend on the clear succeeding.
func (s *Service) InvalidateCache(ctx context.Context) error {
	s.epoch.Add(1)
	if err := s.querier.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("clearing result cache: %w", err)
	}
	s.logger.Info("result cache invalidated", "generation", s.cacheGeneration())
	return nil
}

func (s *Service) CacheStats() (hits, misses int64) {
	return s.querier.Stats()
}

func (s *Service) observe(queryID string, req Request, canonical string, r *SearchResult) {
	eventType := querylog.EventSearch
	if r.TotalCount == 0 {
		eventType = querylog.EventZeroResult
	}
	if s.metrics != nil {
		cacheStatus := "miss"
		outcome := "miss"
		if r.CacheHit {
			cacheStatus, outcome = "hit", "hit"
			s.metrics.CacheHitsTotal.Inc()
		} else {
			s.metrics.CacheMissesTotal.Inc()
		}
		if r.TotalCount == 0 {
			outcome = "zero_result"
		}
		s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
		s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(r.Elapsed.Seconds())
		s.metrics.SearchResultsCount.Observe(float64(r.TotalCount))
	}
	s.events.Track(querylog.Event{
		Type:      eventType,
		QueryID:   queryID,
		Query:     req.Query,
		Canonical: canonical,
		Profile:   req.Profile,
		TotalHits: r.TotalCount,
		Returned:  len(r.Results),
		LatencyMs: r.Elapsed.Milliseconds(),
		CacheHit:  r.CacheHit,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Service) fail(queryID string, req Request, start time.Time, outcome string, err error) {
	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	}
	s.events.Track(querylog.Event{
		Type:      querylog.EventFailed,
		QueryID:   queryID,
		Query:     req.Query,
		Profile:   req.Profile,
		LatencyMs: time.Since(start).Milliseconds(),
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}
