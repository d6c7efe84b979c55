package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/bizdir-crawler/internal/crawler"
	"github.com/JakeFAU/bizdir-crawler/internal/extract"
	"github.com/JakeFAU/bizdir-crawler/internal/metrics"
	"github.com/JakeFAU/bizdir-crawler/internal/pipeline"
	pubmem "github.com/JakeFAU/bizdir-crawler/internal/publisher/memory"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
	"github.com/JakeFAU/bizdir-crawler/internal/store/memory"
	"github.com/JakeFAU/bizdir-crawler/internal/store/storetest"
)

const directoryPage = `<html><body><table>
<tr><th>Name</th><th>Address</th><th>Phone</th></tr>
<tr><td><a href="https://acme.example">Acme</a></td><td>Tokyo</td><td>0312345678</td></tr>
<tr><td><a href="https://acme.example">Acme Duplicate</a></td><td>Osaka</td><td>0612345678</td></tr>
<tr><td></td><td>nameless</td></tr>
<tr><td>Beta</td><td>Nagoya</td></tr>
</table></body></html>`

type pageFetcher struct {
	mu     sync.Mutex
	pages  map[string]crawler.Page
	status map[string]int
	calls  map[string]int
}

func (f *pageFetcher) Fetch(_ context.Context, url string) (crawler.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[url]++
	if code, ok := f.status[url]; ok {
		return crawler.Page{}, &crawler.TransportError{URL: url, StatusCode: code}
	}
	page, ok := f.pages[url]
	if !ok {
		return crawler.Page{}, &crawler.TransportError{URL: url, Err: errors.New("connection refused")}
	}
	return page, nil
}

type sleeps struct {
	mu  sync.Mutex
	got []time.Duration
}

func (s *sleeps) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.got = append(s.got, d)
	s.mu.Unlock()
	return ctx.Err()
}

type fixedIDs struct{}

func (fixedIDs) NewID() (string, error) { return "run-1", nil }

type robots struct {
	allow  bool
	called []string
}

func (r *robots) Check(_ context.Context, url string) bool {
	r.called = append(r.called, url)
	return r.allow
}

type fixture struct {
	fetcher *pageFetcher
	sleeper *sleeps
	backend *memory.Backend
	pub     *pubmem.Publisher
	metrics *metrics.Metrics
	robots  *robots
	logs    *observer.ObservedLogs
}

func newPipeline(t *testing.T, cfg pipeline.Config) (*pipeline.Pipeline, *fixture) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	clock := storetest.NewClock()

	fx := &fixture{
		fetcher: &pageFetcher{
			pages: map[string]crawler.Page{
				"https://dir.example/list": {URL: "https://dir.example/list", StatusCode: http.StatusOK, Body: []byte(directoryPage)},
			},
			status: map[string]int{"https://down.example/": http.StatusInternalServerError},
		},
		sleeper: &sleeps{},
		backend: memory.New(clock),
		pub:     pubmem.New(),
		metrics: metrics.New(),
		robots:  &robots{allow: true},
		logs:    logs,
	}
	retrying := crawler.NewRetryingFetcher(fx.fetcher, crawler.RetryConfig{
		MaxRetries:  2,
		BackoffUnit: time.Second,
	}, fx.sleeper, logger)

	p := pipeline.New(pipeline.Deps{
		Fetcher:   retrying,
		Robots:    fx.robots,
		Registry:  extract.NewRegistry(nil),
		Store:     store.New(fx.backend, logger),
		Publisher: fx.pub,
		IDs:       fixedIDs{},
		Clock:     clock,
		Metrics:   fx.metrics,
	}, cfg, logger)
	return p, fx
}

func TestRunPersistsDeduplicatedRecords(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{CheckRobots: true, Topic: "runs"})
	sum, err := p.Run(context.Background(), []string{"https://dir.example/list"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 1, sum.URLs)
	assert.Equal(t, 1, sum.Fetched)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 3, sum.Extracted)
	assert.Equal(t, 3, sum.Accepted)
	assert.Equal(t, 2, sum.Unique)
	assert.Equal(t, 2, sum.Inserted)

	all, err := fx.backend.GetAll(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Acme", all[0].CompanyName, "first record sharing a website wins")
	require.NotNil(t, all[0].PhoneNumber)
	assert.Equal(t, "03-1234-5678", *all[0].PhoneNumber)
	assert.Equal(t, "https://dir.example/list", *all[0].SourceURL)
	assert.Equal(t, "Beta", all[1].CompanyName)

	msgs := fx.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "runs", msgs[0].Topic)
	var published pipeline.Summary
	require.NoError(t, json.Unmarshal(msgs[0].Data, &published))
	assert.Equal(t, sum.Inserted, published.Inserted)
	assert.Equal(t, "run-1", published.RunID)

	assert.Equal(t, []string{"https://dir.example/list"}, fx.robots.called)
}

func TestRunFetchFailureYieldsNoRecords(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{})
	sum, err := p.Run(context.Background(), []string{"https://down.example/"})
	require.NoError(t, err)

	assert.Equal(t, 3, fx.fetcher.calls["https://down.example/"])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fx.sleeper.got)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 0, sum.Extracted)
	assert.Equal(t, 0, sum.Inserted)
	assert.Empty(t, fx.pub.Messages(), "no topic configured")
	assert.Equal(t, 1, fx.logs.FilterMessage("fetch failed").Len())
}

func TestRunContinuesPastFailedURL(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{})
	sum, err := p.Run(context.Background(), []string{"https://down.example/", "https://dir.example/list"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Fetched)
	assert.Equal(t, 2, sum.Inserted)

	n, err := fx.backend.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRunRobotsIsAdvisory(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{CheckRobots: true})
	fx.robots.allow = false
	sum, err := p.Run(context.Background(), []string{"https://dir.example/list"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, fx.logs.FilterMessage("robots.txt disallows crawling, continuing").Len())
}

func TestRunRobotsDisabled(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{CheckRobots: false})
	_, err := p.Run(context.Background(), []string{"https://dir.example/list"})
	require.NoError(t, err)
	assert.Empty(t, fx.robots.called)
}

func TestRunRerunUpdatesInsteadOfInserting(t *testing.T) {
	t.Parallel()

	p, _ := newPipeline(t, pipeline.Config{})
	first, err := p.Run(context.Background(), []string{"https://dir.example/list"})
	require.NoError(t, err)
	second, err := p.Run(context.Background(), []string{"https://dir.example/list"})
	require.NoError(t, err)

	assert.Equal(t, 2, first.Inserted)
	// Beta has no website and is inserted again; Acme is merged.
	assert.Equal(t, 1, second.Inserted)
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{Topic: "runs"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, []string{"https://dir.example/list"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fx.pub.Messages())
	assert.Zero(t, fx.fetcher.calls["https://dir.example/list"])
}

func TestRunPublishFailureIsLogged(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{Topic: "runs"})
	fx.pub.FailWith(errors.New("unavailable"))
	sum, err := p.Run(context.Background(), []string{"https://dir.example/list"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Inserted)
	assert.Equal(t, 1, fx.logs.FilterMessage("publish run summary failed").Len())
}

func TestRunEmptyURLList(t *testing.T) {
	t.Parallel()

	p, _ := newPipeline(t, pipeline.Config{})
	sum, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, pipeline.Summary{
		RunID:      "run-1",
		StartedAt:  sum.StartedAt,
		FinishedAt: sum.FinishedAt,
	}, sum)
}

func TestRunUsesHostStrategy(t *testing.T) {
	t.Parallel()

	p, fx := newPipeline(t, pipeline.Config{})
	fx.fetcher.pages["https://profiles.example/a"] = crawler.Page{
		StatusCode: http.StatusOK,
		Body:       []byte(`<dl><dt>会社名</dt><dd>Gamma</dd><dt>Email</dt><dd>info@gamma.example</dd></dl>`),
	}
	// Registry is per pipeline; rebuild with a host mapping.
	reg, err := extract.NewRegistryFromConfig(map[string]string{"profiles.example": extract.StrategyDefinitionList})
	require.NoError(t, err)
	p = pipeline.New(pipeline.Deps{
		Fetcher:  fx.fetcher,
		Registry: reg,
		Store:    store.New(fx.backend, nil),
		IDs:      fixedIDs{},
		Clock:    storetest.NewClock(),
	}, pipeline.Config{}, nil)

	sum, err := p.Run(context.Background(), []string{"https://profiles.example/a"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
	recs, err := fx.backend.Search(context.Background(), store.SearchParams{CompanyName: "Gamma"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, record.Ptr("info@gamma.example"), recs[0].Email)
}

// Not parallel: swaps the global tracer provider.
func TestRunRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	p, _ := newPipeline(t, pipeline.Config{})
	_, err := p.Run(context.Background(), []string{"https://dir.example/list", "https://down.example/"})
	require.NoError(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "pipeline.run", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("run_id", "run-1"))
	assert.Contains(t, span.Attributes(), attribute.Int("inserted", 2))
	assert.Contains(t, span.Attributes(), attribute.Int("failed", 1))
}
