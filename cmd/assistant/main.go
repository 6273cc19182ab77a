// cmd/assistant/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tastemate/internal/api"
	"tastemate/internal/common/config"
	"tastemate/internal/common/database"
	"tastemate/internal/common/logger"
	"tastemate/internal/common/observability"
	"tastemate/internal/completion"
	"tastemate/internal/history"
	"tastemate/internal/models"
	"tastemate/internal/pipeline"
	"tastemate/internal/pipeline/dispatch"
	"tastemate/internal/pipeline/location"
	"tastemate/internal/pipeline/params"
	"tastemate/internal/pipeline/parse"
	"tastemate/internal/pipeline/persona"
	"tastemate/internal/taste"
	"tastemate/internal/usage"
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
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting assistant...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracing := observability.NewTracing(cfg.App.Name, os.Getenv("JAEGER_COLLECTOR_ENDPOINT"))
	defer tracing.Shutdown()

	ctx := context.Background()

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
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
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
	zapLog.Info("Redis connected successfully")

	// --- Assemble the pipeline ---
	tasteClient := taste.NewClient(&taste.Config{
		BaseURL:    cfg.Taste.BaseURL,
		APIKey:     cfg.Taste.APIKey,
		Timeout:    time.Duration(cfg.Taste.Timeout) * time.Millisecond,
		MaxRetries: cfg.Taste.MaxRetries,
	}, log)

	store := persona.NewStore(pg, log)

	extractor := location.NewExtractor(&location.Config{
		DefaultRadiusKm: cfg.Taste.DefaultRadiusKm,
		WideRadiusKm:    cfg.Taste.WideRadiusKm,
	})

	synthesizer := params.NewSynthesizer(&params.Config{
		DefaultCategory: models.Category(cfg.Taste.DefaultCategory),
		TakeCap:         cfg.Taste.TakeCap,
		DetailLevel:     models.DetailLevel(cfg.Pipeline.DetailLevel),
	}, store, log)

	resolver := persona.NewResolver(&persona.ResolverConfig{
		LookupTimeout: time.Duration(cfg.Pipeline.ResolveTimeout) * time.Millisecond,
	}, tasteClient, store, log)

	dispatcher := dispatch.NewDispatcher(tasteClient, redis, log)
	parser := parse.NewParser(log)

	histories := history.NewService(esClient, cfg.Database.Elasticsearch.HistoryIndex, log)
	completer := completion.NewClient(cfg.Completion, log)
	counter := usage.NewCounter(redis, cfg.Usage, log)

	p := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Extractor:   extractor,
		Synthesizer: synthesizer,
		Store:       store,
		Resolver:    resolver,
		Dispatcher:  dispatcher,
		Parser:      parser,
		History:     histories,
		Completer:   completer,
		Usage:       counter,
		Tracing:     tracing,
		Metrics:     obs,
	}, log)

	checks := map[string]api.HealthChecker{
		"postgres":      func(ctx context.Context) error { return pg.Ping(ctx) },
		"elasticsearch": func(context.Context) error { return esClient.Ping() },
		"redis":         func(ctx context.Context) error { return redis.Ping(ctx) },
	}

	server := api.NewServer(cfg.Server, p, checks, log)

	// --- Metrics Server ---
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		zapLog.Info("Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			zapLog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- API Server ---
	go func() {
		if err := server.Start(); err != nil {
			zapLog.Fatal("api server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down api server", zap.Error(err))
	}

	zapLog.Info("Assistant stopped gracefully")
}
