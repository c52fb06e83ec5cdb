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

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/consumer"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/store"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	source := flag.String("source", "", "file or URL to ingest at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting retriever service", "port", cfg.Server.Port, "k1", cfg.Retriever.K1, "b", cfg.Retriever.B)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		ms, err := metrics.StartServer(fmt.Sprintf(":%d", cfg.Metrics.Port), prometheus.DefaultGatherer)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer ms.Shutdown(context.Background())
	}

	src := loader.NewSourceLoader(cfg.Loader, &http.Client{Timeout: cfg.Loader.HTTPTimeout})
	r := retriever.New(
		retriever.WithParams(ranker.Params{K1: cfg.Retriever.K1, B: cfg.Retriever.B}),
		retriever.WithLoader(src),
	)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, pkgredis.IsNilError)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var pgClient *postgres.Client
	var ingestLog *store.IngestLog
	if cfg.Postgres.Enabled {
		pgClient, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, ingest log disabled", "error", err)
		} else {
			defer pgClient.Close()
			ingestLog = store.NewIngestLog(pgClient)
			if err := ingestLog.EnsureSchema(ctx); err != nil {
				slog.Error("failed to prepare ingest log", "error", err)
				os.Exit(1)
			}
			slog.Info("ingest log enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, analytics.WithDropHook(m.AnalyticsDropped.Inc))
		collector.Start(ctx)
		defer collector.Close()
	}

	ingestOpts := []ingest.Option{ingest.WithMetrics(m)}
	handlerOpts := []handler.Option{handler.WithMetrics(m)}
	if queryCache != nil {
		ingestOpts = append(ingestOpts, ingest.WithCache(queryCache))
		handlerOpts = append(handlerOpts, handler.WithCache(queryCache))
	}
	if ingestLog != nil {
		ingestOpts = append(ingestOpts, ingest.WithRecorder(ingestLog))
		handlerOpts = append(handlerOpts, handler.WithHistory(ingestLog))
	}
	if collector != nil {
		ingestOpts = append(ingestOpts, ingest.WithCollector(collector))
		handlerOpts = append(handlerOpts, handler.WithCollector(collector))
	}
	svc := ingest.NewService(r, ingestOpts...)

	if cfg.Kafka.Enabled {
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusIngest, consumer.HandleMessage(svc))
		ic := consumer.New(kc)
		go func() {
			if err := ic.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		}()
		slog.Info("ingest consumer started", "topic", cfg.Kafka.Topics.CorpusIngest)
	}

	if *source != "" {
		if _, err := svc.Ingest(ctx, ingest.Request{Source: *source}); err != nil {
			slog.Error("startup ingest failed", "source", *source, "error", err)
			os.Exit(1)
		}
	}

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		stats := r.Stats()
		if !stats.Ready {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no corpus ingested"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, generation %d", stats.Documents, stats.Generation),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(r, svc, cfg.Retriever, handlerOpts...)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("retriever service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("retriever service stopped")
}
