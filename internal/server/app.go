// Package server builds the application's dependencies from configuration
// and drives the scrape, export, stats and serve entry points.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/api"
	"github.com/JakeFAU/bizdir-crawler/internal/clock/system"
	"github.com/JakeFAU/bizdir-crawler/internal/config"
	"github.com/JakeFAU/bizdir-crawler/internal/crawler"
	"github.com/JakeFAU/bizdir-crawler/internal/export"
	"github.com/JakeFAU/bizdir-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/bizdir-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/bizdir-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/bizdir-crawler/internal/id/uuid"
	"github.com/JakeFAU/bizdir-crawler/internal/metrics"
	"github.com/JakeFAU/bizdir-crawler/internal/pipeline"
	"github.com/JakeFAU/bizdir-crawler/internal/processor"
	memorypublisher "github.com/JakeFAU/bizdir-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/bizdir-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/bizdir-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/bizdir-crawler/internal/storage/local"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
	memorystore "github.com/JakeFAU/bizdir-crawler/internal/store/memory"
	pgstore "github.com/JakeFAU/bizdir-crawler/internal/store/postgres"
	sqlitestore "github.com/JakeFAU/bizdir-crawler/internal/store/sqlite"
	"github.com/JakeFAU/bizdir-crawler/internal/telemetry"
)

// StatsSampleSize is how many rows Stats returns alongside the count.
const StatsSampleSize = 5

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     *system.Clock
	metrics   *metrics.Metrics
	store     *store.Store
	pipeline  *pipeline.Pipeline
	headless  *headlessfetcher.Fetcher
	publisher *gcppublisher.Publisher
	gcsClient *gcs.Client
	tracer    *sdktrace.TracerProvider

	// sink overrides the configured export destination.
	sink storage.Sink
}

// Stats is the result of the stats command.
type Stats struct {
	Count  int64
	Sample []record.Record
}

// Build creates the application's dependencies. Storage initialization
// failures are returned; everything else degrades with a warning.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:     cfg,
		logger:  logger,
		clock:   system.New(),
		metrics: metrics.New(),
	}
	logger.Info("building application dependencies",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("fetcher_mode", cfg.Fetcher.Mode))

	if tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName); err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		app.tracer = tp
	}

	backend, err := app.setupStore(ctx)
	if err != nil {
		_ = app.closeInfrastructure()
		return nil, err
	}
	app.store = store.New(backend, logger.Named("store"))

	fetcher, err := app.setupFetcher()
	if err != nil {
		_ = app.closeInfrastructure()
		return nil, err
	}

	registry, err := extract.NewRegistryFromConfig(cfg.Extract.SourceMap())
	if err != nil {
		_ = app.closeInfrastructure()
		return nil, fmt.Errorf("extractor registry init failed: %w", err)
	}

	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		_ = app.closeInfrastructure()
		return nil, err
	}

	app.pipeline = pipeline.New(pipeline.Deps{
		Fetcher:   fetcher,
		Robots:    crawler.NewRobotsAdvisor(cfg.Crawler.UserAgent, logger.Named("robots")),
		Registry:  registry,
		Processor: processor.New(logger.Named("processor")),
		Store:     app.store,
		Publisher: publisher,
		IDs:       uuid.New(),
		Clock:     app.clock,
		Metrics:   app.metrics,
	}, pipeline.Config{
		CheckRobots: cfg.Crawler.CheckRobots,
		Topic:       cfg.PubSub.TopicName,
	}, logger.Named("pipeline"))

	return app, nil
}

// WithSink sends exports to sink instead of the configured destination.
func (a *App) WithSink(sink storage.Sink) *App {
	a.sink = sink
	return a
}

// Store exposes the record store.
func (a *App) Store() *store.Store {
	return a.store
}

// Metrics exposes the Prometheus collectors.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Scrape runs the ingestion pipeline over urls.
func (a *App) Scrape(ctx context.Context, urls []string) (pipeline.Summary, error) {
	sum, err := a.pipeline.Run(ctx, urls)
	if err != nil {
		return sum, fmt.Errorf("scrape: %w", err)
	}
	return sum, nil
}

// Export writes stored records in format and returns the file URI.
func (a *App) Export(ctx context.Context, format string, params store.SearchParams) (string, error) {
	sink, err := a.exportSink(ctx)
	if err != nil {
		return "", err
	}
	exp := export.New(a.store, sink, a.clock, a.logger.Named("export"))
	uri, err := exp.Export(ctx, format, params)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return uri, nil
}

// Stats returns the record count and the first StatsSampleSize rows.
func (a *App) Stats(ctx context.Context) Stats {
	return Stats{
		Count:  a.store.Count(ctx),
		Sample: a.store.GetAll(ctx, StatsSampleSize),
	}
}

// Handler returns the query API handler.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.store, a.metrics, uuid.New(), a.logger.Named("api")).Handler()
}

// Serve runs the query API until ctx is canceled or a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		a.logger.Error("http server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}

// Close releases every client and flushes the logger.
func (a *App) Close() error {
	err := a.closeInfrastructure()
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeInfrastructure() error {
	var errs []error
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) setupStore(ctx context.Context) (store.Backend, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverPostgres:
		b, err := pgstore.Open(ctx, pgstore.Config{
			DSN:      a.cfg.Storage.DSN,
			MaxConns: a.cfg.Storage.MaxConns,
		}, a.clock, a.logger.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.logger.Info("using postgres record store")
		return b, nil
	case config.DriverMemory:
		a.logger.Warn("using in-memory record store, records are lost on exit")
		return memorystore.New(a.clock), nil
	default:
		b, err := sqlitestore.Open(a.cfg.Storage.Path, a.clock, a.logger.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		a.logger.Info("using sqlite record store", zap.String("path", a.cfg.Storage.Path))
		return b, nil
	}
}

func (a *App) setupFetcher() (*crawler.RetryingFetcher, error) {
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.HTTPTimeout(),
	})

	var single crawler.PageFetcher = static
	if a.cfg.Fetcher.Mode != config.ModeStatic {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = headless
		single = headless
		if a.cfg.Fetcher.Mode == config.ModeAuto {
			single = crawler.NewAutoFetcher(static, headless,
				crawler.NewHeuristic(a.cfg.Headless.PromotionThreshold), a.logger.Named("auto"))
		}
		a.logger.Info("headless fetching enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}

	retry := a.cfg.Retry()
	a.logger.Info("fetcher config",
		zap.String("user_agent", a.cfg.Crawler.UserAgent),
		zap.Int("max_retries", retry.MaxRetries),
		zap.Duration("backoff_unit", retry.BackoffUnit),
		zap.Duration("delay", retry.Delay),
		zap.Duration("timeout", a.cfg.HTTPTimeout()))
	return crawler.NewRetryingFetcher(single, retry, a.clock, a.logger.Named("fetcher")).
		WithObserver(a.metrics), nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	topic := a.cfg.PubSub.TopicName
	if topic == "" {
		a.logger.Debug("no Pub/Sub topic configured, run summaries are not published")
		return nil, nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	p, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = p
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", topic))
	return p, nil
}

func (a *App) exportSink(ctx context.Context) (storage.Sink, error) {
	if a.sink != nil {
		return a.sink, nil
	}
	if bucket := a.cfg.Export.GCSBucket; bucket != "" {
		if a.gcsClient == nil {
			client, err := gcs.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("gcs client init failed: %w", err)
			}
			a.gcsClient = client
		}
		sink, err := gcsstorage.New(a.gcsClient, gcsstorage.Config{Bucket: bucket, Prefix: a.cfg.Export.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("gcs export sink init failed: %w", err)
		}
		a.logger.Debug("exporting to GCS", zap.String("bucket", bucket))
		return sink, nil
	}
	sink, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Export.Dir})
	if err != nil {
		return nil, fmt.Errorf("local export sink init failed: %w", err)
	}
	return sink, nil
}
