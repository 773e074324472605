package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/capboard/internal/adapters/http/api"
	"github.com/okian/capboard/internal/adapters/http/swagger"
	kafkaintake "github.com/okian/capboard/internal/adapters/mq/kafka"
	"github.com/okian/capboard/internal/adapters/persistence"
	"github.com/okian/capboard/internal/adapters/repository"
	"github.com/okian/capboard/internal/adapters/seed"
	app "github.com/okian/capboard/internal/app"
	"github.com/okian/capboard/internal/config"
	"github.com/okian/capboard/internal/tracing"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithCustomLabels(cfg.MetricsLabels),
	)

	if err := run(ctx, cfg, logger.Get()); err != nil {
		logger.Get().Error(ctx, "capboard stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service from cfg and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	tp, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName: "capboard",
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		SampleRate:  cfg.TracingSampleRate,
		Insecure:    cfg.TracingInsecure,
	}, log.Named("tracing"))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			log.Error(sctx, "tracing shutdown", logger.Error(err))
		}
	}()

	store, release, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithRankLimit(cfg.RankLimit),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		if err := svc.Stop(context.Background()); err != nil {
			log.Error(context.Background(), "service stop", logger.Error(err))
		}
	}()

	if err := seedStore(ctx, cfg.SeedFile, store, svc, log); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)

	consumerDone := make(chan error, 1)
	if len(cfg.KafkaBrokers) > 0 {
		consumer := kafkaintake.NewConsumer(
			kafkaintake.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup),
			svc,
			kafkaintake.WithLogger(log.Named("kafka")),
		)
		log.Info(ctx, "consuming ticks from kafka",
			logger.Any("brokers", cfg.KafkaBrokers), logger.String("topic", cfg.KafkaTopic))
		go func() {
			defer func() { _ = consumer.Close() }()
			consumerDone <- consumer.Run(ctx)
		}()
	} else {
		close(consumerDone)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := <-consumerDone; err != nil {
		log.Error(shutdownCtx, "kafka consumer", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return nil
}

// openStore opens the backend named by cfg.StoreURI. release closes what
// the store itself does not own and must run after the store is closed.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func(), error) {
	switch cfg.StoreScheme() {
	case "redis", "rediss":
		store, err := repository.OpenRedis(ctx, cfg.StoreURI,
			repository.WithPrefix(cfg.RedisPrefix),
			repository.WithRedisLogger(log.Named("redis")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		log.Info(ctx, "using redis store", logger.String("prefix", cfg.RedisPrefix))
		return store, func() {}, nil
	}

	opts := []repository.Option{
		repository.WithLogger(log.Named("memstore")),
		repository.WithFlushInterval(cfg.FlushInterval),
	}
	release := func() {}
	if cfg.DataDir != "" {
		j, err := persistence.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		opts = append(opts, repository.WithJournal(j))
		release = func() {
			if err := j.Close(); err != nil {
				log.Error(context.Background(), "closing journal", logger.Error(err))
			}
		}
		log.Info(ctx, "memory store journaled", logger.String("data_dir", cfg.DataDir))
	}

	store, err := repository.NewMemoryStore(ctx, opts...)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("open memory store: %w", err)
	}
	return store, release, nil
}

// seedStore loads path into an empty store. A store that already holds
// companies (restored journal, shared Redis) is left alone. Bad rows are
// logged and skipped.
func seedStore(ctx context.Context, path string, store repository.Store, svc *app.Service, log logger.Logger) error {
	if path == "" {
		return nil
	}
	n, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count before seeding: %w", err)
	}
	if n > 0 {
		log.Info(ctx, "store already populated; skipping seed", logger.Int("companies", n))
		return nil
	}

	companies, err := seed.LoadFile(path)
	if err != nil {
		if !errors.Is(err, seed.ErrInvalidRecord) {
			return fmt.Errorf("seed: %w", err)
		}
		log.Warn(ctx, "seed file has invalid rows", logger.String("path", path), logger.Error(err))
	}
	return svc.Seed(ctx, companies)
}

// newHandler builds the HTTP handler: API routes, docs and tracing.
func newHandler(ctx context.Context, svc api.Dependencies, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, log.Named("http")).Register(ctx, mux)

	return otelhttp.NewHandler(mux, "capboard",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// startSystemMetricsUpdater periodically publishes runtime gauges.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
