package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okian/aireview/internal/adapters/ai"
	"github.com/okian/aireview/internal/adapters/enrichment"
	"github.com/okian/aireview/internal/adapters/http/api"
	"github.com/okian/aireview/internal/adapters/mq"
	"github.com/okian/aireview/internal/adapters/repository"
	app "github.com/okian/aireview/internal/app"
	"github.com/okian/aireview/internal/config"
	"github.com/okian/aireview/internal/domain/attempts"
	"github.com/okian/aireview/internal/domain/extraction"
	"github.com/okian/aireview/internal/domain/fitreview"
	"github.com/okian/aireview/pkg/logger"
	"github.com/okian/aireview/pkg/metrics"
	"github.com/okian/aireview/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	errBrokerUnavailable = errors.New("broker connection unavailable")
	errConsumerLost      = errors.New("consumer lost its delivery channel")
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("aireview: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.InitWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	metrics.Configure(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithMetricPrefix(cfg.Metrics.Prefix),
		metrics.WithCustomLabels(cfg.Metrics.ConstLabels),
		metrics.WithHistogramBuckets(cfg.Metrics.HTTPBuckets),
	)

	tp, err := setupTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "tracer shutdown failed", logger.Error(err))
		}
	}()
	log.Info(ctx, "tracing configured", logger.String("exporter", tp.Exporter()))

	db, err := repository.Open(ctx, cfg.Database, repository.WithLogger(log.Named("store")))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx, cfg.Database.MigrateDocuments); err != nil {
		return err
	}

	completer, err := ai.New(ctx, cfg.AI, log.Named("ai"))
	if err != nil {
		return err
	}

	broker, err := mq.Dial(ctx, cfg.AMQP, mq.WithBrokerLogger(log.Named("broker")))
	if err != nil {
		return err
	}

	reviews := repository.NewReviewStore(db)
	pipeline := app.NewPipeline(app.Dependencies{
		Enricher:  enrichment.NewResolver(cfg.Upstream, enrichment.WithLogger(log.Named("enrichment"))),
		Analyzer:  fitreview.NewAnalyzer(completer, fitreview.WithLogger(log.Named("fitreview"))),
		Extractor: extraction.NewAnalyzer(completer, extraction.WithLogger(log.Named("extraction"))),
		Reviews:   reviews,
		Documents: repository.NewDocumentStore(db),
		Publisher: mq.NewPublisher(broker, cfg.AMQP.Exchange,
			mq.WithPublishTimeout(cfg.AMQP.PublishTimeout),
			mq.WithSource(cfg.Upstream.ServiceName),
			mq.WithPublisherLogger(log.Named("publisher"))),
	}, app.WithMinExtractedText(cfg.Pipeline.MinExtractedTextLength))

	consumer := mq.NewConsumer(pipeline, broker, cfg.AMQP.DeadLetterExchange,
		mq.WithRetryLimit(cfg.Pipeline.RetryLimit),
		mq.WithHandlerTimeout(cfg.Pipeline.HandlerTimeout),
		mq.WithAttemptTracker(attempts.NewInMemoryTracker(attempts.WithMaxSize(cfg.Pipeline.AttemptCacheSize))),
		mq.WithConsumerLogger(log.Named("consumer")))

	svc := app.New(broker, consumer, pipeline,
		app.WithLogger(log),
		app.WithWorkerCount(cfg.Pipeline.Workers(cfg.AMQP.Prefetch)),
		app.WithReviewReader(reviews),
	)
	if err := svc.Start(ctx); err != nil {
		_ = broker.Close()
		return err
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, svc,
		api.NamedCheck{Name: "database", Check: db.Ping},
		api.NamedCheck{Name: "broker", Check: func(context.Context) error {
			if !svc.Healthy() {
				return errBrokerUnavailable
			}
			return nil
		}})
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting ops HTTP server", logger.String("addr", cfg.Addr), logger.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "ops HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for a shutdown signal or for the broker to drop the consumer.
	var exitErr error
	select {
	case <-ctx.Done():
	case <-svc.ConsumerLost():
		exitErr = errConsumerLost
		log.Error(context.Background(), "consumer lost, exiting for restart")
	}
	log.Info(context.Background(), "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown incomplete", logger.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "stopped")
	return exitErr
}

func setupTracing(ctx context.Context, cfg config.Tracing) (*tracing.Provider, error) {
	opts := []tracing.Option{
		tracing.WithServiceName(cfg.ServiceName),
		tracing.WithServiceVersion(version),
		tracing.WithSampleRatio(cfg.SampleRatio),
	}
	switch {
	case cfg.Console:
		opts = append(opts, tracing.WithConsole(os.Stdout))
	case cfg.Endpoint != "":
		opts = append(opts, tracing.WithOTLPEndpoint(cfg.Endpoint, cfg.Insecure))
	}
	return tracing.Setup(ctx, opts...)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
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

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
