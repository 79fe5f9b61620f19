package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads configuration from the environment, applying spec.md §6
// defaults for every named option. Matches the teacher's env-first,
// Overload-a-.env-file pattern in internal/config/loader.go.
func Load() (Config, error) {
	_ = godotenv.Overload()

	expertSeedFromEnv := strings.TrimSpace(os.Getenv("EXPERT_SEED_PATH")) != ""
	projectRegistryFromEnv := strings.TrimSpace(os.Getenv("PROJECT_REGISTRY")) != ""

	cfg := Config{
		Host: firstNonEmpty(os.Getenv("HOST"), "0.0.0.0"),
		Port: envInt("PORT", 8080),

		Database: DatabaseConfig{
			DSN:      os.Getenv("DATABASE_URL"),
			MaxConns: int32(envInt("DB_MAX_CONNS", maxInt(15, envInt("MAX_CONCURRENT", 15)+8))),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
			Enabled:  os.Getenv("REDIS_ADDR") != "",
		},
		Kafka: KafkaConfig{
			Brokers:         splitCSV(os.Getenv("KAFKA_BROKERS")),
			EscalationTopic: firstNonEmpty(os.Getenv("KAFKA_ESCALATION_TOPIC"), "orchestrator.escalations"),
			DLQTopic:        firstNonEmpty(os.Getenv("KAFKA_DLQ_TOPIC"), "orchestrator.escalations.dlq"),
			Enabled:         os.Getenv("KAFKA_BROKERS") != "",
		},
		S3: S3Config{
			Bucket:                os.Getenv("ARCHIVE_S3_BUCKET"),
			Region:                firstNonEmpty(os.Getenv("ARCHIVE_S3_REGION"), "us-east-1"),
			Endpoint:              os.Getenv("ARCHIVE_S3_ENDPOINT"),
			Prefix:                firstNonEmpty(os.Getenv("ARCHIVE_S3_PREFIX"), "transcripts"),
			AccessKey:             os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
			SecretKey:             os.Getenv("ARCHIVE_S3_SECRET_KEY"),
			UsePathStyle:          envBool("ARCHIVE_S3_PATH_STYLE", false),
			TLSInsecureSkipVerify: envBool("ARCHIVE_S3_TLS_INSECURE_SKIP_VERIFY", false),
			SSE:                   S3SSEConfig{Mode: os.Getenv("ARCHIVE_S3_SSE_MODE"), KMSKeyID: os.Getenv("ARCHIVE_S3_SSE_KMS_KEY_ID")},
			Enabled:               os.Getenv("ARCHIVE_S3_BUCKET") != "",
		},
		ClickHouse: ClickHouseConfig{
			DSN:     os.Getenv("CLICKHOUSE_DSN"),
			Enabled: os.Getenv("CLICKHOUSE_DSN") != "",
		},
		Obs: ObsConfig{
			OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:    firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "taskmesh"),
			ServiceVersion: firstNonEmpty(os.Getenv("OTEL_SERVICE_VERSION"), "dev"),
			Environment:    firstNonEmpty(os.Getenv("OTEL_ENVIRONMENT"), "development"),
			Enabled:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		},

		FastBackend: BackendConfig{
			BaseURL: firstNonEmpty(os.Getenv("FAST_BACKEND_URL"), "http://localhost:11434"),
			APIKey:  os.Getenv("FAST_BACKEND_API_KEY"),
			Models:  splitCSV(os.Getenv("FAST_BACKEND_MODELS")),
		},
		HeavyBackend: BackendConfig{
			BaseURL: firstNonEmpty(os.Getenv("HEAVY_BACKEND_URL"), "http://localhost:8765"),
			APIKey:  os.Getenv("HEAVY_BACKEND_API_KEY"),
			Models:  splitCSV(os.Getenv("HEAVY_BACKEND_MODELS")),
		},
		Arbiter: ArbiterConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  firstNonEmpty(os.Getenv("ARBITER_MODEL"), "claude-opus-4-5"),
		},
		AltCatalog: AltCatalogConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  firstNonEmpty(os.Getenv("OPENAI_MODEL"), "gpt-5"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:     firstNonEmpty(os.Getenv("EMBEDDINGS_PROVIDER"), "http"),
			GeminiAPIKey: os.Getenv("GOOGLE_GENAI_API_KEY"),
			Dimensions:   envInt("EMBEDDINGS_DIMENSIONS", 768),
		},

		Router: RouterConfig{
			LLMTimeout:         envSeconds("ROUTER_LLM_TIMEOUT_SEC", 300),
			MaxHeavyMLX:        envInt("MAX_HEAVY_MLX", 2),
			MaxHeavyOllama:     envInt("MAX_HEAVY_OLLAMA", 2),
			BatchByModel:       envBool("BATCH_BY_MODEL", true),
			InterleaveBlocks:   envBool("INTERLEAVE_BLOCKS", true),
			MaxConcurrentFast:  envInt("MAX_CONCURRENT_FAST_FAMILY", 8),
			MaxConcurrentHeavy: envInt("MAX_CONCURRENT_HEAVY_FAMILY", 4),
			CatalogTTL:         envSeconds("CATALOG_TTL_SEC", 120),
			HeartbeatStream:    envSeconds("HEARTBEAT_STREAM_SEC", 10),
			LightOnlyHeavy:     envBool("HEAVY_LIGHT_ONLY", false),
		},
		RAG: RAGConfig{
			CacheBackend:     firstNonEmpty(os.Getenv("RAG_CACHE_BACKEND"), "memory"),
			CacheTTL:         envSeconds("RAG_CACHE_TTL_SEC", 120),
			SnippetChars:     envInt("RAG_SNIPPET_CHARS", 500),
			Top1FullMaxChars: envInt("RAG_TOP1_FULL_MAX_CHARS", 2000),
			TopK:             envInt("RAG_TOP_K", 5),
			SimThreshold:     envFloat("RAG_SIM_THRESHOLD", 0.6),
			Rerank:           envBool("RAG_RERANK", false),
			VectorBackend:    firstNonEmpty(os.Getenv("RAG_VECTOR_BACKEND"), "postgres"),
		},
		Executor: ExecutorConfig{
			MaxConcurrent:       envInt("MAX_CONCURRENT", 15),
			AdaptiveConcurrency: envBool("ADAPTIVE_CONCURRENCY", true),
			StuckMinutes:        time.Duration(envInt("STUCK_MINUTES", 15)) * time.Minute,
			HeartbeatSeconds:    time.Duration(envInt("HEARTBEAT_SECONDS", 15)) * time.Second,
			MaxAttempts:         envInt("MAX_ATTEMPTS", 3),
			RetryDelay:          envSeconds("RETRY_DELAY_SEC", 90),
			BatchSize:           envInt("EXECUTOR_BATCH_SIZE", 20),
			AdaptiveInterval:    envSeconds("ADAPTIVE_INTERVAL_SEC", 15),
		},
		Conductor: ConductorConfig{
			MaxConcurrentSync: envInt("MAX_CONCURRENT_SYNC", 50),
			MaxGoalChars:      envInt("MAX_GOAL_CHARS", 4000),
			UnderstandTTL:     envSeconds("UNDERSTAND_TTL_SEC", 300),
			UnderstandMax:     envInt("UNDERSTAND_MAX", 200),
			StrategyEnabled:   envBool("STRATEGY_ENABLED", true),
			LongTermK:         2,
			FanoutMax:         envInt("FANOUT_MAX", 6),
			MaxPlanRevisions:  1,
		},

		ExpertSeedPath:    firstNonEmpty(os.Getenv("EXPERT_SEED_PATH"), "experts.seed"),
		ProjectRegistry:   splitCSV(firstNonEmpty(os.Getenv("PROJECT_REGISTRY"), "default")),
		BoardAPIKey:       os.Getenv("BOARD_API_KEY"),
		WarmupQueriesPath: os.Getenv("RAG_WARMUP_QUERIES_PATH"),
	}

	if err := loadYAMLOverlay(&cfg, expertSeedFromEnv, projectRegistryFromEnv); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func envSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(envInt(key, defSeconds)) * time.Second
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
