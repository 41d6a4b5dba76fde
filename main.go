package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parchmentlabs/parchment/internal/activities"
	"github.com/parchmentlabs/parchment/internal/agents"
	"github.com/parchmentlabs/parchment/internal/circuitbreaker"
	"github.com/parchmentlabs/parchment/internal/config"
	"github.com/parchmentlabs/parchment/internal/contentcache"
	"github.com/parchmentlabs/parchment/internal/db"
	"github.com/parchmentlabs/parchment/internal/embeddings"
	"github.com/parchmentlabs/parchment/internal/health"
	"github.com/parchmentlabs/parchment/internal/httpapi"
	"github.com/parchmentlabs/parchment/internal/ingest"
	"github.com/parchmentlabs/parchment/internal/llm"
	"github.com/parchmentlabs/parchment/internal/metadata"
	"github.com/parchmentlabs/parchment/internal/notion"
	"github.com/parchmentlabs/parchment/internal/ranking"
	"github.com/parchmentlabs/parchment/internal/registry"
	"github.com/parchmentlabs/parchment/internal/retrieval"
	"github.com/parchmentlabs/parchment/internal/session"
	"github.com/parchmentlabs/parchment/internal/storage"
	"github.com/parchmentlabs/parchment/internal/streaming"
	"github.com/parchmentlabs/parchment/internal/temporal"
	"github.com/parchmentlabs/parchment/internal/tracing"
	"github.com/parchmentlabs/parchment/internal/vectordb"
	"github.com/parchmentlabs/parchment/internal/websearch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Tracing initialization failed", zap.Error(err))
	}

	// Hot-reload is best effort; a broken watcher never blocks startup.
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if watcher, err := config.NewWatcher(path, cfg, logger); err != nil {
			logger.Warn("Config watcher init failed", zap.Error(err))
		} else {
			watcher.OnChange(func(next *config.Config) error {
				logger.Info("Configuration file changed; restart to apply structural changes")
				return nil
			})
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Config watcher start failed", zap.Error(err))
			}
			defer watcher.Stop()
		}
	}

	// Redis backs sessions, content metadata, and the embedding cache.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	redisWrapper := circuitbreaker.NewRedisWrapper(redisClient, circuitbreaker.FromConfig(cfg.Breakers.Redis), logger)
	defer redisWrapper.Close()

	store := storage.NewRedisStore(redisClient, logger)
	meta := metadata.NewBlobStore(store, logger)
	contentCache := contentcache.New(meta, store, cfg.Cache.TTL, logger)

	embedder := embeddings.NewService(cfg.Embeddings, cfg.Breakers.HTTP, embeddings.NewRedisCache(redisWrapper), logger)
	chunker := embeddings.NewChunker(cfg.Embeddings.ChunkTokens, cfg.Embeddings.ChunkOverlap)
	vectors := vectordb.NewClient(cfg.Vector, cfg.Breakers.HTTP, logger)
	llmClient := llm.NewHTTPClient(cfg.LLM, cfg.Breakers.HTTP, logger)
	web := websearch.NewClient(cfg.WebSearch, cfg.Breakers.HTTP, logger)

	prompts, err := agents.LoadPrompts(os.Getenv("PROMPTS_PATH"))
	if err != nil {
		logger.Warn("Prompt overrides unavailable, using defaults", zap.Error(err))
	}

	retriever := retrieval.NewRetriever(embedder, vectors, logger)
	ranker := ranking.NewRanker(logger)
	checker := agents.NewHistoryChecker(llmClient, prompts, logger)
	queryAgent := agents.NewQueryAgent(checker, ranker, meta, retriever, web, llmClient, prompts, logger)
	reviewer := agents.NewReviewAgent(llmClient, prompts, logger)
	writer := agents.NewWriteAgent(llmClient, prompts, logger)
	simple := agents.NewSimpleChat(retriever, llmClient, prompts, logger)

	sessions := session.NewManager(redisWrapper, cfg.Session, logger)

	runs, err := db.NewRunWriter(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Run history database unavailable", zap.Error(err))
	}
	if runs != nil {
		defer runs.Close()
	}

	tagger := metadata.NewTagger(llmClient, logger)
	ingestor := ingest.New(chunker, embedder, vectors, tagger, meta, contentCache, nil, logger)

	notionClient := notion.NewClient(cfg.Notion, circuitbreaker.FromConfig(cfg.Breakers.HTTP), logger)
	notionCacher := notion.NewCacher(notionClient, ingestor, logger)

	hub := streaming.NewHub(cfg.Streaming.RingCapacity)

	// Warm the content listing before traffic arrives.
	warmCtx, cancelWarm := context.WithTimeout(ctx, 10*time.Second)
	if err := contentCache.Refresh(warmCtx); err != nil {
		logger.Warn("Initial content cache refresh failed", zap.Error(err))
	}
	cancelWarm()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporal.NewLogger(logger),
	})
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	acts := activities.New(queryAgent, reviewer, writer, sessions, runs, hub, logger)
	wrk := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	registry.Register(wrk, acts, logger)
	if err := wrk.Start(); err != nil {
		logger.Fatal("Failed to start Temporal worker", zap.Error(err))
	}
	defer wrk.Stop()

	hm := health.NewManager(5*time.Second, logger)
	hm.Register(health.PingChecker("redis", true, redisWrapper))
	hm.Register(health.PingChecker("vectordb", false, vectors))
	if runs != nil {
		hm.Register(health.PingChecker("postgres", false, runs))
	}
	hm.Register(health.CheckFunc{
		ProbeName:  "temporal",
		IsCritical: true,
		Probe: func(ctx context.Context) error {
			_, err := temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		},
	})

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/healthz", hm.LivenessHandler())
	adminMux.HandleFunc("/readyz", hm.ReadinessHandler())
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Service.HealthPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Service.HealthPort))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	api := httpapi.NewServer(temporalClient, sessions, contentCache, ingestor, notionCacher, simple, runs, hub, logger)
	apiServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Service.ReadTimeout,
		// Streaming connections outlive the write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Service.HTTPPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	go sessionCleanupLoop(ctx, sessions, logger)

	logger.Info("Parchment service started",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("temporal", cfg.Temporal.HostPort),
	)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown incomplete", zap.Error(err))
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown incomplete", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, err
		}
	}
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// sessionCleanupLoop sweeps expired session keys out of Redis once an hour.
func sessionCleanupLoop(ctx context.Context, sessions *session.Manager, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.CleanupExpired(ctx)
			if err != nil {
				logger.Warn("Session cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("Expired sessions removed", zap.Int("count", removed))
			}
		}
	}
}
