// Package config loads process configuration from the environment (with an
// optional .env overlay) and an optional YAML file, matching the layering
// the teacher's internal/config/loader.go uses: env wins, YAML fills gaps.
package config

import "time"

// DatabaseConfig configures the shared Postgres connection pool.
type DatabaseConfig struct {
	DSN      string
	MaxConns int32
}

// RedisConfig configures the optional Redis-backed caches (Retrieval
// context cache, Router embedding cache).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// KafkaConfig configures the escalation/event bus producer.
type KafkaConfig struct {
	Brokers         []string
	EscalationTopic string
	DLQTopic        string
	Enabled         bool
}

// S3SSEConfig configures server-side encryption for archived objects.
type S3SSEConfig struct {
	Mode     string // "" | "sse-s3" | "sse-kms"
	KMSKeyID string
}

// S3Config configures the archive object store for oversized transcripts.
type S3Config struct {
	Bucket                string
	Region                string
	Endpoint              string
	Prefix                string
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
	Enabled               bool
}

// ClickHouseConfig configures the latency/retry analytics sink.
type ClickHouseConfig struct {
	DSN     string
	Enabled bool
}

// BackendConfig configures one LLM backend family's HTTP endpoint.
type BackendConfig struct {
	BaseURL string
	APIKey  string
	Models  []string // priority-ordered catalog hints
}

// ArbiterConfig configures the escalation/board-synthesizer model, which
// Router dispatches to via the Anthropic SDK rather than the generic HTTP
// families.
type ArbiterConfig struct {
	APIKey string
	Model  string
}

// AltCatalogConfig configures the optional OpenAI-compatible catalog entry.
type AltCatalogConfig struct {
	APIKey string
	Model  string
}

// EmbeddingsConfig configures Router.Embed.
type EmbeddingsConfig struct {
	Provider     string // "http" (default) | "gemini"
	GeminiAPIKey string
	Dimensions   int
}

// ObsConfig configures OpenTelemetry tracing/metrics.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

// RouterConfig holds spec.md §6 Router-related environment options.
type RouterConfig struct {
	LLMTimeout         time.Duration
	MaxHeavyMLX        int
	MaxHeavyOllama     int
	BatchByModel       bool
	InterleaveBlocks   bool
	MaxConcurrentFast  int
	MaxConcurrentHeavy int
	CatalogTTL         time.Duration
	HeartbeatStream    time.Duration
	LightOnlyHeavy     bool
	// ModelTimeouts overrides LLMTimeout for specific models, keyed by
	// model name. Populated from the optional YAML overlay's
	// modelTimeoutsSec table (§A.2); nil when no overlay is present.
	ModelTimeouts map[string]time.Duration
}

// RAGConfig holds spec.md §6 RAG_* environment options.
type RAGConfig struct {
	CacheBackend     string // "memory" | "redis"
	CacheTTL         time.Duration
	SnippetChars     int
	Top1FullMaxChars int
	TopK             int
	SimThreshold     float64
	Rerank           bool
	VectorBackend    string // "postgres" | "qdrant"
}

// ExecutorConfig holds spec.md §6 Executor-related environment options.
type ExecutorConfig struct {
	MaxConcurrent       int
	AdaptiveConcurrency bool
	StuckMinutes        time.Duration
	HeartbeatSeconds    time.Duration
	MaxAttempts         int
	RetryDelay          time.Duration
	BatchSize           int
	AdaptiveInterval    time.Duration
}

// ConductorConfig holds spec.md §6 Conductor-related environment options.
type ConductorConfig struct {
	MaxConcurrentSync int
	MaxGoalChars      int
	UnderstandTTL     time.Duration
	UnderstandMax     int
	StrategyEnabled   bool
	LongTermK         int
	FanoutMax         int
	MaxPlanRevisions  int
}

// Config is the fully assembled process configuration, built once in the
// composition root and passed explicitly to every component.
type Config struct {
	Host string
	Port int

	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	S3         S3Config
	ClickHouse ClickHouseConfig
	Obs        ObsConfig

	FastBackend  BackendConfig
	HeavyBackend BackendConfig
	Arbiter      ArbiterConfig
	AltCatalog   AltCatalogConfig
	Embeddings   EmbeddingsConfig

	Router    RouterConfig
	RAG       RAGConfig
	Executor  ExecutorConfig
	Conductor ConductorConfig

	ExpertSeedPath    string
	ProjectRegistry   []string
	BoardAPIKey       string
	WarmupQueriesPath string
}
