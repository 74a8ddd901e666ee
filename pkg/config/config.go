// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Corpus, Kafka, Redis, Indexer, Analyzer, Search, Cache).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Search   SearchConfig   `yaml:"search"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimitPerSec caps requests per client address on the API routes.
	// Zero disables limiting.
	RateLimitPerSec float64  `yaml:"rateLimitPerSec"`
	RateLimitBurst  int      `yaml:"rateLimitBurst"`
	CORSOrigins     []string `yaml:"corsOrigins"`
}

// CorpusConfig selects the database that owns the documents.
type CorpusConfig struct {
	Driver string `yaml:"driver"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig holds the path of the embedded corpus database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentChanges string `yaml:"documentChanges"`
	SearchEvents    string `yaml:"searchEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
	// OpTimeout bounds each cache read or write. A slow Redis should cost
	// a miss, not search latency.
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// IndexerConfig controls persistence of the posting store and the bulk
// reindex worker pool.
type IndexerConfig struct {
	DataDir            string        `yaml:"dataDir"`
	SnapshotInterval   time.Duration `yaml:"snapshotInterval"`
	ReindexConcurrency int           `yaml:"reindexConcurrency"`
	ReindexRatePerSec  float64       `yaml:"reindexRatePerSec"`
	CatchUpOnStart     bool          `yaml:"catchUpOnStart"`
}

// AnalyzerConfig selects the language profile and input limits.
type AnalyzerConfig struct {
	Profile        string `yaml:"profile"`
	MaxInputLength int    `yaml:"maxInputLength"`
	StripMarkup    bool   `yaml:"stripMarkup"`
}

// SearchConfig controls query limits and ranking constants.
type SearchConfig struct {
	MaxQueryLength      int           `yaml:"maxQueryLength"`
	DefaultLimit        int           `yaml:"defaultLimit"`
	MaxLimit            int           `yaml:"maxLimit"`
	QueryTimeout        time.Duration `yaml:"queryTimeout"`
	TitleWeight         float64       `yaml:"titleWeight"`
	BodyWeight          float64       `yaml:"bodyWeight"`
	LengthNormalization float64       `yaml:"lengthNormalization"`
	CoverageBonus       float64       `yaml:"coverageBonus"`
	MaxPrefixExpansions int           `yaml:"maxPrefixExpansions"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend  string        `yaml:"backend"`
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		Corpus: CorpusConfig{
			Driver: "sqlite",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchengine",
			User:            "searchengine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/corpus.db",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchengine-indexer",
			Topics: KafkaTopics{
				DocumentChanges: "document-changes",
				SearchEvents:    "search-events",
			},
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			OpTimeout: 100 * time.Millisecond,
		},
		Indexer: IndexerConfig{
			DataDir:            "data/index",
			SnapshotInterval:   5 * time.Minute,
			ReindexConcurrency: 4,
			ReindexRatePerSec:  500,
		},
		Analyzer: AnalyzerConfig{
			Profile:        "italian",
			MaxInputLength: 1 << 20,
		},
		Search: SearchConfig{
			MaxQueryLength:      512,
			DefaultLimit:        10,
			MaxLimit:            100,
			QueryTimeout:        2 * time.Second,
			TitleWeight:         3.0,
			BodyWeight:          1.0,
			LengthNormalization: 0.75,
			CoverageBonus:       0.5,
			MaxPrefixExpansions: 256,
		},
		Cache: CacheConfig{
			Backend:  "memory",
			TTL:      60 * time.Second,
			Capacity: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the engine cannot honour.
func (c *Config) Validate() error {
	var problems []string
	if c.Search.TitleWeight <= c.Search.BodyWeight {
		problems = append(problems, "search.titleWeight must be greater than search.bodyWeight")
	}
	if c.Search.BodyWeight <= 0 {
		problems = append(problems, "search.bodyWeight must be positive")
	}
	if c.Search.LengthNormalization < 0 || c.Search.LengthNormalization > 1 {
		problems = append(problems, "search.lengthNormalization must be within [0,1]")
	}
	if c.Search.CoverageBonus < 0 {
		problems = append(problems, "search.coverageBonus must not be negative")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		problems = append(problems, "search.defaultLimit must be positive and not exceed search.maxLimit")
	}
	if c.Search.MaxQueryLength <= 0 {
		problems = append(problems, "search.maxQueryLength must be positive")
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q is not one of memory, redis, none", c.Cache.Backend))
	}
	switch c.Corpus.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("corpus.driver %q is not one of sqlite, postgres", c.Corpus.Driver))
	}
	if c.Analyzer.Profile == "" {
		problems = append(problems, "analyzer.profile is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_CORPUS_DRIVER"); v != "" {
		cfg.Corpus.Driver = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_ANALYZER_PROFILE"); v != "" {
		cfg.Analyzer.Profile = v
	}
	if v := os.Getenv("SP_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("SP_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = ttl
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
