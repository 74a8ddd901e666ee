package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/querylog"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchengine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchengine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"profile", cfg.Analyzer.Profile,
		"corpus", cfg.Corpus.Driver,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	var corpusOpts []corpus.Option
	var changeProducer, eventProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		changeProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentChanges)
		defer changeProducer.Close()
		eventProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer eventProducer.Close()
		corpusOpts = append(corpusOpts, corpus.WithEvents(changeProducer))
	}
	docs, err := corpus.Open(ctx, cfg, corpusOpts...)
	if err != nil {
		return fmt.Errorf("opening corpus: %w", err)
	}
	defer docs.Close()

	a, err := analyzer.NewForProfile(cfg.Analyzer.Profile, analyzer.Options{
		MaxInputLength: cfg.Analyzer.MaxInputLength,
		StripMarkup:    cfg.Analyzer.StripMarkup,
	})
	if err != nil {
		return err
	}
	store := index.NewStore()
	coord, err := indexer.NewCoordinator(store, a, cfg.Indexer,
		indexer.WithSource(docs),
		indexer.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := coord.Close(); err != nil {
			slog.Error("closing index failed", "error", err)
		}
	}()

	rec, err := coord.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering index: %w", err)
	}
	slog.Info("index recovered",
		"snapshot_generation", rec.SnapshotGeneration,
		"documents", rec.Documents,
		"replayed", rec.Replayed,
		"rebuilt", rec.Rebuilt,
	)
	if cfg.Indexer.CatchUpOnStart {
		report, err := coord.Reindex(ctx, nil)
		if err != nil {
			slog.Warn("startup reconcile finished with failures", "failed", report.Failed, "error", err)
		}
	}
	docs.Subscribe(coord)
	coord.StartFlushLoop(ctx)

	resultCache, redisClient := buildCache(cfg, m)
	if redisClient != nil {
		defer redisClient.Close()
	}

	agg := querylog.NewAggregator(nil)
	sinks := []querylog.Sink{agg}
	if eventProducer != nil {
		collector := querylog.NewCollector(eventProducer, 500, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		sinks = append(sinks, collector)
	}

	svc, err := searcher.New(store, coord, resultCache, searcher.ConfigFrom(cfg),
		searcher.WithMetrics(m),
		searcher.WithQueryLog(querylog.Multi(sinks...)),
	)
	if err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentChanges,
			consumer.HandleChanges(coord, resilience.RetryConfig{
				MaxAttempts:  5,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Multiplier:   2,
			}))
		go func() {
			if err := kc.Start(ctx); err != nil {
				slog.Error("change consumer stopped", "error", err)
			}
		}()
		slog.Info("consuming corpus changes",
			"topic", cfg.Kafka.Topics.DocumentChanges,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	checker := health.NewChecker()
	checker.Register("corpus", health.PingCheck(docs.Ping, health.StatusDown))
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status: health.StatusUp,
			Details: map[string]any{
				"generation": coord.Generation(),
				"documents":  store.DocCount(),
				"profile":    a.Profile(),
			},
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
	}

	mux := http.NewServeMux()
	handler.New(svc, agg, docs).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimitPerSec > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst))(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildCache picks the configured result cache. An unreachable Redis falls
// back to the in-process cache. The search service binds the generation
// the memory cache's janitor compares against.
func buildCache(cfg *config.Config, m *metrics.Metrics) (cache.Cache, *pkgredis.Client) {
	memory := func() cache.Cache {
		return cache.NewMemory(cache.MemoryConfig{
			Capacity:        cfg.Cache.Capacity,
			TTL:             cfg.Cache.TTL,
			JanitorInterval: time.Minute,
		})
	}
	switch cfg.Cache.Backend {
	case "none":
		slog.Info("result cache disabled")
		return nil, nil
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-process cache", "error", err)
			return memory(), nil
		}
		breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, state resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
				}
			},
		})
		slog.Info("result cache enabled", "backend", "redis", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
		return cache.NewRedis(client, cfg.Cache.TTL, breaker), client
	default:
		slog.Info("result cache enabled", "backend", "memory", "capacity", cfg.Cache.Capacity)
		return memory(), nil
	}
}
