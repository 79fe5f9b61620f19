// Command orchestratord is the process composition root: it loads
// configuration, wires logging/observability, opens the shared stores,
// builds Router/Retrieval/Executor/Conductor once, and serves spec.md
// §6's HTTP surface. Grounded on the teacher's cmd/agentd/main.go
// wiring order (env -> logger -> otel -> clients -> http.ListenAndServe),
// generalized onto this spec's four components.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"taskmesh/internal/analytics"
	"taskmesh/internal/archive"
	"taskmesh/internal/config"
	"taskmesh/internal/conductor"
	"taskmesh/internal/executor"
	"taskmesh/internal/httpapi"
	"taskmesh/internal/objectstore"
	"taskmesh/internal/observability"
	"taskmesh/internal/persistence/databases"
	"taskmesh/internal/retrieval"
	"taskmesh/internal/router"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Overload()
	}
	observability.InitLogger("orchestratord.log", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, metricsHandler, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdownOTel = nil
	}
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	stores, err := databases.NewManager(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init persistence")
	}
	defer stores.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	fastProvider := router.NewHTTPProvider("fast", cfg.FastBackend.BaseURL, cfg.FastBackend.APIKey, cfg.Router.LLMTimeout, cfg.Router.ModelTimeouts)
	heavyProvider := router.NewHTTPProvider("heavy", cfg.HeavyBackend.BaseURL, cfg.HeavyBackend.APIKey, cfg.Router.LLMTimeout, cfg.Router.ModelTimeouts)
	var baseEmbedder router.Embedder
	if cfg.Embeddings.Provider == "gemini" && cfg.Embeddings.GeminiAPIKey != "" {
		baseEmbedder, err = router.NewGeminiEmbedder(ctx, cfg.Embeddings.GeminiAPIKey, "", cfg.Embeddings.Dimensions)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init gemini embedder")
		}
	} else {
		baseEmbedder = router.NewHTTPEmbedder(cfg.FastBackend.BaseURL, cfg.FastBackend.APIKey, "embeddings")
	}
	embedder := router.NewCachingEmbedder(baseEmbedder, 1000, 10*time.Minute, rdb)

	rt := router.New(cfg.Router, fastProvider, heavyProvider, embedder)
	rt.Start(ctx)
	defer rt.Stop()

	arbiter := router.NewAnthropicProvider(cfg.Arbiter)

	clocks := retrieval.NewStageClocks(retrieval.DefaultStageThresholds())
	ragCache := retrieval.NewContextCache(cfg.RAG, rdb)
	retr := retrieval.NewService(cfg.RAG, stores.Knowledge, rt, ragCache, clocks)
	retrieval.Warmup(ctx, retr, cfg.WarmupQueriesPath)

	var archiveStore *archive.Archive
	if cfg.S3.Enabled {
		s3store, err := objectstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			log.Warn().Err(err).Msg("s3 archive init failed, oversized transcripts stay inline")
		} else {
			archiveStore = archive.New(s3store)
		}
	}

	analyticsSink, err := analytics.New(ctx, cfg.ClickHouse)
	if err != nil {
		log.Warn().Err(err).Msg("clickhouse analytics init failed, latency events are dropped")
		analyticsSink = analytics.NoopSink
	}

	events, err := executor.NewKafkaEventPublisher(cfg.Kafka)
	if err != nil {
		log.Warn().Err(err).Msg("kafka event publisher init failed, lifecycle events are dropped")
		events = nil
	}
	if events != nil {
		defer events.Close()
	}

	pool := executor.NewPool(cfg.Executor)
	go pool.Run(ctx, nil)

	escalation := &executor.Escalation{Arbiter: arbiter, Model: cfg.Arbiter.Model, Board: stores.Board, Archive: archiveStore, Events: events}
	attempt := &executor.Attempt{
		Tasks: stores.Tasks, Retriever: retr, Dispatcher: rt, Escalate: escalation.Escalate, Cfg: cfg.Executor,
		Analytics: analyticsSink, Events: events,
	}
	loop := &executor.Loop{
		Tasks: stores.Tasks, Experts: stores.Experts, Attempt: attempt, Pool: pool,
		Weights: executor.DefaultAssignmentWeights(), Cfg: cfg.Executor,
	}
	go loop.Run(ctx)

	understander := conductor.NewUnderstander(cfg.Conductor, rt)
	planner := conductor.NewPlanner(rt)
	cond := conductor.New(cfg.Conductor, understander, planner, rt, retr, stores.Sessions, stores.Knowledge, stores.Tasks)

	server := httpapi.NewServer(cond, retrievalSnapshotter{clocks}, stores.Board, cfg.BoardAPIKey, metricsHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: server}

	go func() {
		log.Info().Str("addr", addr).Msg("orchestratord listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
	}
}

// retrievalSnapshotter adapts *retrieval.StageClocks to httpapi's narrow
// ragSnapshotter port.
type retrievalSnapshotter struct {
	clocks *retrieval.StageClocks
}

func (r retrievalSnapshotter) Snapshot() retrieval.Snapshot { return r.clocks.Snapshot() }
