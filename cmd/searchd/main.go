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

	"github.com/lib/pq"

	"github.com/gridstonehq/workspace-search/internal/api"
	"github.com/gridstonehq/workspace-search/internal/cache"
	"github.com/gridstonehq/workspace-search/internal/cdc"
	"github.com/gridstonehq/workspace-search/internal/elastic"
	"github.com/gridstonehq/workspace-search/internal/reindex"
	"github.com/gridstonehq/workspace-search/internal/searcher/query"
	"github.com/gridstonehq/workspace-search/internal/searcher/suggest"
	"github.com/gridstonehq/workspace-search/internal/store"
	"github.com/gridstonehq/workspace-search/pkg/config"
	"github.com/gridstonehq/workspace-search/pkg/health"
	"github.com/gridstonehq/workspace-search/pkg/kafka"
	"github.com/gridstonehq/workspace-search/pkg/logger"
	"github.com/gridstonehq/workspace-search/pkg/metrics"
	"github.com/gridstonehq/workspace-search/pkg/postgres"
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
	slog.Info("starting workspace search service", "port", cfg.Server.Port)

	m := metrics.New()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	es, err := elastic.NewClient(cfg.Elasticsearch, m)
	if err != nil {
		slog.Error("failed to create search engine client", "error", err)
		os.Exit(1)
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexEvents)
		defer producer.Close()
		slog.Info("index event publishing enabled", "topic", cfg.Kafka.Topics.IndexEvents)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(pg)
	suggestCache := cache.New[[]string](cfg.Cache.MaxEntries, cfg.Cache.DefaultTTL)

	searchEngine := query.NewEngine(es, cfg.Elasticsearch.IndexPrefix)
	suggestEngine := suggest.NewEngine(es, suggestCache, cfg.Elasticsearch.IndexPrefix,
		suggest.WithTTL(cfg.Suggest.TTL),
		suggest.WithLimits(cfg.Suggest.MaxCandidates, cfg.Suggest.MaxResults),
		suggest.WithCounters(m.CacheHitsTotal.Inc, m.CacheMissesTotal.Inc),
	)

	buffers := cdc.NewBuffers()
	var publisher cdc.Publisher
	var reindexPublisher reindex.Publisher
	if producer != nil {
		publisher = producer
		reindexPublisher = producer
	}
	pipeline := cdc.NewPipeline(buffers, es, st, st, suggestCache, publisher,
		cfg.Elasticsearch.IndexPrefix, cfg.Pipeline, m)
	pipeline.Start(ctx)

	pqListener := pg.NewListener(func(event pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("listener connection event", "event", event, "error", err)
		}
	})
	listener := cdc.NewListener(pqListener, buffers, pipeline, cfg.Pipeline.BatchSize, m)
	go func() {
		if err := listener.Start(ctx); err != nil {
			slog.Error("change listener stopped", "error", err)
		}
	}()

	orchestrator := reindex.New(st, pg, es, suggestCache, reindexPublisher,
		cfg.Elasticsearch.IndexPrefix, cfg.Reindex, cfg.Pipeline.Backoff, m)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("elasticsearch", func(ctx context.Context) health.ComponentHealth {
		if err := es.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("cdc_pipeline", func(ctx context.Context) health.ComponentHealth {
		stats := pipeline.Stats()
		if stats.Buffered >= cfg.Pipeline.BatchSize*2 {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("%d events backed up", stats.Buffered),
			}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	h := api.New(searchEngine, suggestEngine, orchestrator, st, m)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, checker, m, cfg.Server.WriteTimeout),
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

	slog.Info("workspace search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// Stop after the HTTP server so in-flight requests finish first; the
	// pipeline runs its final flush before exiting, then the notification
	// connection closes.
	pipeline.Stop()
	if err := listener.Close(); err != nil {
		slog.Error("failed to close change listener", "error", err)
	}
	slog.Info("workspace search service stopped")
}
