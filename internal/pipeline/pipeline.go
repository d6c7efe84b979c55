// Package pipeline runs one ingestion pass: fetch every URL, extract raw
// records, normalize and deduplicate them as one batch, then persist the
// batch and announce the run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/crawler"
	"github.com/JakeFAU/bizdir-crawler/internal/extract"
	"github.com/JakeFAU/bizdir-crawler/internal/metrics"
	"github.com/JakeFAU/bizdir-crawler/internal/processor"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
)

// Run statuses reported to metrics.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const tracerName = "github.com/JakeFAU/bizdir-crawler/internal/pipeline"

// RobotsChecker reports whether a site's robots.txt permits crawling.
type RobotsChecker interface {
	Check(ctx context.Context, baseURL string) bool
}

// RecordStore persists a batch and returns the number of fresh inserts.
type RecordStore interface {
	UpsertBatch(ctx context.Context, recs []record.Record) int
}

// Recorder receives run and per-stage record counts.
type Recorder interface {
	AddRecords(stage string, n int)
	ObserveRun(status string)
}

// Config tunes a Pipeline.
type Config struct {
	// CheckRobots enables the advisory robots.txt check before each URL.
	CheckRobots bool
	// Topic receives the run summary. Empty disables publishing.
	Topic string
	// DedupKey defaults to website_url.
	DedupKey string
}

// Deps are the collaborators of a Pipeline. Robots, Publisher and Metrics
// are optional.
type Deps struct {
	Fetcher   crawler.PageFetcher
	Robots    RobotsChecker
	Registry  *extract.Registry
	Processor *processor.Processor
	Store     RecordStore
	Publisher crawler.Publisher
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Metrics   Recorder
}

// Summary describes a finished run. It is also the published event payload.
type Summary struct {
	RunID      string    `json:"run_id"`
	URLs       int       `json:"urls"`
	Fetched    int       `json:"fetched"`
	Failed     int       `json:"failed"`
	Extracted  int       `json:"extracted"`
	Accepted   int       `json:"accepted"`
	Unique     int       `json:"unique"`
	Inserted   int       `json:"inserted"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Pipeline wires Fetcher, Extractor, RecordProcessor and Store together.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New builds a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DedupKey == "" {
		cfg.DedupKey = processor.DefaultDedupKey
	}
	if deps.Processor == nil {
		deps.Processor = processor.New(logger.Named("processor"))
	}
	if deps.Registry == nil {
		deps.Registry = extract.NewRegistry(nil)
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger}
}

// Run processes urls sequentially. Fetch and extraction failures only reduce
// the record count; the returned error is non-nil only when ctx ends.
func (p *Pipeline) Run(ctx context.Context, urls []string) (sum Summary, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.run")
	defer func() {
		span.SetAttributes(
			attribute.String("run_id", sum.RunID),
			attribute.Int("urls", sum.URLs),
			attribute.Int("failed", sum.Failed),
			attribute.Int("inserted", sum.Inserted),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sum = Summary{URLs: len(urls), StartedAt: p.deps.Clock.Now()}
	if id, idErr := p.deps.IDs.NewID(); idErr == nil {
		sum.RunID = id
	} else {
		p.logger.Warn("run id generation failed", zap.Error(idErr))
	}
	logger := p.logger.With(zap.String("run_id", sum.RunID))
	logger.Info("pipeline started", zap.Int("urls", len(urls)))

	var raws []record.Raw
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return p.cancelled(logger, sum, err)
		}
		got, ok := p.scrape(ctx, logger, u)
		if !ok {
			sum.Failed++
			continue
		}
		sum.Fetched++
		raws = append(raws, got...)
	}
	if err := ctx.Err(); err != nil {
		return p.cancelled(logger, sum, err)
	}

	sum.Extracted = len(raws)
	accepted := p.deps.Processor.ProcessBatch(raws)
	sum.Accepted = len(accepted)
	unique := p.deps.Processor.Deduplicate(accepted, p.cfg.DedupKey)
	sum.Unique = len(unique)
	sum.Inserted = p.deps.Store.UpsertBatch(ctx, unique)
	if err := ctx.Err(); err != nil {
		return p.cancelled(logger, sum, err)
	}
	sum.FinishedAt = p.deps.Clock.Now()

	p.record(sum)
	p.publish(ctx, logger, sum)
	logger.Info("pipeline finished",
		zap.Int("fetched", sum.Fetched),
		zap.Int("failed", sum.Failed),
		zap.Int("extracted", sum.Extracted),
		zap.Int("accepted", sum.Accepted),
		zap.Int("unique", sum.Unique),
		zap.Int("inserted", sum.Inserted))
	return sum, nil
}

// scrape fetches and extracts one URL. ok is false when the fetch failed.
func (p *Pipeline) scrape(ctx context.Context, logger *zap.Logger, url string) ([]record.Raw, bool) {
	if p.cfg.CheckRobots && p.deps.Robots != nil && !p.deps.Robots.Check(ctx, url) {
		logger.Warn("robots.txt disallows crawling, continuing", zap.String("url", url))
	}

	page, err := p.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		logger.Error("fetch failed", zap.String("url", url), zap.Error(err))
		return nil, false
	}

	doc, err := extract.Parse(page.Body, url)
	if err != nil {
		logger.Warn("unparseable page", zap.String("url", url), zap.Error(err))
		return nil, true
	}
	raws := p.deps.Registry.For(url).Extract(doc, url)
	logger.Info("extracted records",
		zap.String("url", url),
		zap.Bool("rendered", page.Rendered),
		zap.Int("records", len(raws)))
	return raws, true
}

func (p *Pipeline) cancelled(logger *zap.Logger, sum Summary, err error) (Summary, error) {
	sum.FinishedAt = p.deps.Clock.Now()
	if p.deps.Metrics != nil {
		p.deps.Metrics.ObserveRun(StatusCancelled)
	}
	logger.Warn("pipeline cancelled", zap.Error(err))
	return sum, fmt.Errorf("pipeline run %s: %w", sum.RunID, err)
}

func (p *Pipeline) record(sum Summary) {
	m := p.deps.Metrics
	if m == nil {
		return
	}
	m.AddRecords(metrics.StageExtracted, sum.Extracted)
	m.AddRecords(metrics.StageAccepted, sum.Accepted)
	m.AddRecords(metrics.StageDropped, sum.Extracted-sum.Accepted)
	m.AddRecords(metrics.StageDuplicate, sum.Accepted-sum.Unique)
	m.AddRecords(metrics.StageInserted, sum.Inserted)
	m.ObserveRun(StatusCompleted)
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, sum Summary) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, sum)
	if err != nil {
		logger.Error("publish run summary failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("run summary published", zap.String("topic", p.cfg.Topic), zap.String("message_id", id))
}
