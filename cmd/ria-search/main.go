package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ria-search/internal/api"
	"ria-search/internal/cache"
	"ria-search/internal/common/camunda"
	"ria-search/internal/common/config"
	"ria-search/internal/common/database"
	commonhttp "ria-search/internal/common/http"
	"ria-search/internal/common/logger"
	"ria-search/internal/common/observability"
	"ria-search/internal/embedding"
	"ria-search/internal/search"
	"ria-search/internal/store/elasticsearch"
	"ria-search/internal/store/postgres"

	hs "ria-search/internal/workers/search/hybrid-search"
	psf "ria-search/internal/workers/search/parse-search-filters"
	qp "ria-search/internal/workers/search/query-postgresql"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.NewFromConfig(cfg.Logging)
	if err != nil {
		zapLog = logger.New(cfg.Logging.Level, "console")
		zapLog.Warn("invalid logging config, falling back to console", zap.Error(err))
	}
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting RIA search service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("lexicalBackend", cfg.Search.LexicalBackend),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}

	ctx := context.Background()
	checks := make(map[string]api.ReadinessCheck)

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.CheckVectorExtension(ctx); err != nil {
		zapLog.Fatal("pgvector extension unavailable", zap.Error(err))
	}
	checks["postgres"] = pg.Ping
	zapLog.Info("PostgreSQL connected successfully")

	pgStore := postgres.New(pg.DB, log,
		postgres.WithLanguage(cfg.Search.TextSearchLanguage),
		postgres.WithDimension(cfg.Search.Dimension),
	)

	// --- Lexical backend ---
	var text search.TextSearcher = pgStore
	if cfg.Search.LexicalBackend == config.LexicalBackendElasticsearch {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if ok, err := esClient.IndexExists(ctx, cfg.Database.Elasticsearch.Index); err != nil || !ok {
			zapLog.Warn("elasticsearch index missing, lexical path will degrade",
				zap.String("index", cfg.Database.Elasticsearch.Index),
				zap.Error(err),
			)
		}
		text = elasticsearch.New(esClient.Client, cfg.Database.Elasticsearch.Index, log)
		checks["elasticsearch"] = esClient.Ping
		zapLog.Info("Elasticsearch connected successfully")
	}

	engine, err := search.NewEngine(
		search.Compose(pgStore, text, pgStore),
		search.ConfigFrom(cfg.Search),
		search.WithLogger(log),
		search.WithObservability(obs),
	)
	if err != nil {
		zapLog.Fatal("search engine setup failed", zap.Error(err))
	}

	// --- Embedding model ---
	var embedder embedding.Embedder
	if cfg.Embedding.Enabled {
		httpClient := commonhttp.NewClient(config.GetDuration(cfg.Embedding.Timeout), log)
		openAI := embedding.NewOpenAI(cfg.Embedding, cfg.Search.Dimension, httpClient)
		embedder = openAI
		zapLog.Info("Embedding model configured",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", openAI.Dimensions()),
		)
	} else {
		zapLog.Warn("embedding disabled, text-only requests run lexical search")
	}

	// --- Response cache (Redis) ---
	var responseCache api.ResponseCache
	if cfg.Cache.Enabled {
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		responseCache = cache.New(redis.Client, time.Duration(cfg.Cache.TTL)*time.Second, cfg.Cache.Prefix, log)
		checks["redis"] = redis.Ping
		zapLog.Info("Redis connected successfully")
	}

	// --- Zeebe workers ---
	var zeebe *camunda.Client
	var workers []worker.JobWorker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(ctx, cfg.Camunda)
			if err != nil && !camunda.IsRetryable(err) {
				zapLog.Fatal("zeebe client rejected configuration", zap.Error(err))
			}
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		checks["zeebe"] = zeebe.HealthCheck
		zapLog.Info("Zeebe client connected successfully")

		workers = registerWorkers(cfg, zeebe, engine, embedder, pgStore, obs, log, zapLog)
	}

	// --- HTTP API ---
	apiHandler, err := api.NewHandler(api.Deps{
		Searcher: engine,
		Embedder: embedder,
		Cache:    responseCache,
		Firms:    pgStore,
		Checks:   checks,
		Obs:      obs,
	}, log, api.WithNotFound(postgres.ErrNotFound))
	if err != nil {
		zapLog.Fatal("api setup failed", zap.Error(err))
	}

	mux := apiHandler.Routes()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down observability", zap.Error(err))
	}

	zapLog.Info("RIA search service stopped gracefully")
}

func registerWorkers(
	cfg *config.Config,
	zeebe *camunda.Client,
	engine *search.Engine,
	embedder embedding.Embedder,
	pgStore *postgres.Store,
	obs *observability.Observability,
	log logger.Logger,
	zapLog *zap.Logger,
) []worker.JobWorker {
	var started []worker.JobWorker
	start := func(taskType string, handler camunda.HandlerFunc) {
		if w := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, zapLog); w != nil {
			started = append(started, w)
		}
	}

	{
		pcfg := psf.LoadConfig()
		pcfg.Timeout = config.GetDuration(config.GetWorkerConfig(cfg, psf.TaskType).Timeout)
		pcfg.DefaultSize = cfg.Search.DefaultLimit
		pcfg.MaxSize = cfg.Search.MaxLimit
		start(psf.TaskType, psf.NewHandler(pcfg, log).Handle)
	}

	{
		hcfg := hs.LoadConfig()
		hcfg.Timeout = config.GetDuration(config.GetWorkerConfig(cfg, hs.TaskType).Timeout)
		handler, err := hs.NewHandler(hcfg, engine, embedder, obs, log)
		if err != nil {
			zapLog.Fatal("failed to create hybrid-search handler", zap.Error(err))
		}
		start(hs.TaskType, handler.Handle)
	}

	{
		qcfg := qp.LoadConfig()
		qcfg.Timeout = config.GetDuration(config.GetWorkerConfig(cfg, qp.TaskType).Timeout)
		start(qp.TaskType, qp.NewHandler(qcfg, pgStore, log).Handle)
	}

	zapLog.Info("Search workers registered", zap.Int("started", len(started)))
	return started
}
