// Package config loads the Parchment service configuration from a YAML
// file with environment variable overrides, and can hot-reload it when
// the file changes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level service configuration.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	LLM        LLMConfig        `mapstructure:"llm"`
	WebSearch  WebSearchConfig  `mapstructure:"web_search"`
	Notion     NotionConfig     `mapstructure:"notion"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Session    SessionConfig    `mapstructure:"session"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Breakers   BreakersConfig   `mapstructure:"circuit_breakers"`
	Streaming  StreamingConfig  `mapstructure:"streaming"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServiceConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	HealthPort      int           `mapstructure:"health_port"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	Enabled bool   `mapstructure:"enabled"`
}

type VectorConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	TopK       int           `mapstructure:"top_k"`
	Threshold  float64       `mapstructure:"threshold"`
	VectorSize int           `mapstructure:"vector_size"`
}

type EmbeddingsConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxLRUSize   int           `mapstructure:"max_lru_size"`
	ChunkTokens  int           `mapstructure:"chunk_tokens"`
	ChunkOverlap int           `mapstructure:"chunk_overlap"`
}

type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

type WebSearchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxResults int           `mapstructure:"max_results"`
}

type NotionConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RefreshOnMiss bool          `mapstructure:"refresh_on_miss"`
}

type SessionConfig struct {
	MaxHistory int           `mapstructure:"max_history"`
	TTL        time.Duration `mapstructure:"ttl"`
	CacheSize  int           `mapstructure:"cache_size"`
}

type WorkflowConfig struct {
	MaxRewrites     int           `mapstructure:"max_rewrites"`
	StepTimeout     time.Duration `mapstructure:"step_timeout"`
	HistoryWindow   int           `mapstructure:"history_window"`
	PersistRuns     bool          `mapstructure:"persist_runs"`
	StreamingEvents bool          `mapstructure:"streaming_events"`
}

type BreakersConfig struct {
	Redis BreakerConfig `mapstructure:"redis"`
	HTTP  BreakerConfig `mapstructure:"http"`
}

type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
	HalfOpenRequests int           `mapstructure:"half_open_requests"`
}

type StreamingConfig struct {
	RingCapacity int `mapstructure:"ring_capacity"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from CONFIG_PATH (default config/parchment.yaml).
// A missing file is not an error; defaults plus PARCHMENT_* env overrides
// apply. A malformed file is an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PARCHMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/parchment.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.http_port", 8081)
	v.SetDefault("service.health_port", 8082)
	v.SetDefault("service.graceful_timeout", "30s")
	v.SetDefault("service.read_timeout", "30s")
	v.SetDefault("service.write_timeout", "30s")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "parchment-chat")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("database.enabled", false)

	v.SetDefault("vector.base_url", "http://localhost:6333")
	v.SetDefault("vector.timeout", "10s")
	v.SetDefault("vector.top_k", 5)
	v.SetDefault("vector.threshold", 0.0)
	v.SetDefault("vector.vector_size", 1536)

	v.SetDefault("embeddings.base_url", "http://localhost:8000")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.timeout", "30s")
	v.SetDefault("embeddings.cache_ttl", "1h")
	v.SetDefault("embeddings.max_lru_size", 1000)
	v.SetDefault("embeddings.chunk_tokens", 1800)
	v.SetDefault("embeddings.chunk_overlap", 200)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.rate_limit", 5.0)
	v.SetDefault("llm.rate_burst", 10)

	v.SetDefault("web_search.base_url", "https://api.tavily.com")
	v.SetDefault("web_search.timeout", "20s")
	v.SetDefault("web_search.max_results", 5)

	v.SetDefault("notion.base_url", "https://api.notion.com/v1")
	v.SetDefault("notion.timeout", "30s")

	v.SetDefault("cache.ttl", "60s")
	v.SetDefault("cache.refresh_on_miss", true)

	v.SetDefault("session.max_history", 50)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.cache_size", 1000)

	v.SetDefault("workflow.max_rewrites", 2)
	v.SetDefault("workflow.step_timeout", "120s")
	v.SetDefault("workflow.history_window", 10)
	v.SetDefault("workflow.persist_runs", true)
	v.SetDefault("workflow.streaming_events", true)

	v.SetDefault("circuit_breakers.redis.enabled", true)
	v.SetDefault("circuit_breakers.redis.failure_threshold", 5)
	v.SetDefault("circuit_breakers.redis.success_threshold", 2)
	v.SetDefault("circuit_breakers.redis.timeout", "30s")
	v.SetDefault("circuit_breakers.redis.half_open_requests", 3)
	v.SetDefault("circuit_breakers.http.enabled", true)
	v.SetDefault("circuit_breakers.http.failure_threshold", 5)
	v.SetDefault("circuit_breakers.http.success_threshold", 2)
	v.SetDefault("circuit_breakers.http.timeout", "30s")
	v.SetDefault("circuit_breakers.http.half_open_requests", 3)

	v.SetDefault("streaming.ring_capacity", 256)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "parchment")
	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Workflow.MaxRewrites < 0 {
		return fmt.Errorf("workflow.max_rewrites must be >= 0, got %d", c.Workflow.MaxRewrites)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Session.MaxHistory <= 0 {
		return fmt.Errorf("session.max_history must be positive, got %d", c.Session.MaxHistory)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn required when database.enabled")
	}
	return nil
}
