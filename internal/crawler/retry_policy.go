package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/clock/system"
)

// Defaults applied when RetryConfig leaves a field unset.
const (
	DefaultMaxRetries  = 3
	DefaultBackoffUnit = time.Second
	DefaultDelay       = time.Second
)

// Fetch outcomes reported to the FetchObserver.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// RetryConfig controls retry budget, backoff unit and the post-success delay.
type RetryConfig struct {
	MaxRetries  int
	BackoffUnit time.Duration
	Delay       time.Duration
}

// RetryingFetcher wraps a PageFetcher with exponential backoff retries and a
// fixed inter-request delay after each successful fetch.
type RetryingFetcher struct {
	next     PageFetcher
	cfg      RetryConfig
	sleeper  Sleeper
	observer FetchObserver
	logger   *zap.Logger
}

// NewRetryingFetcher builds a RetryingFetcher. A negative MaxRetries or
// BackoffUnit falls back to the defaults; a zero Delay disables throttling.
func NewRetryingFetcher(next PageFetcher, cfg RetryConfig, sleeper Sleeper, logger *zap.Logger) *RetryingFetcher {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultBackoffUnit
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if sleeper == nil {
		sleeper = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingFetcher{
		next:    next,
		cfg:     cfg,
		sleeper: sleeper,
		logger:  logger,
	}
}

// WithObserver attaches a per-attempt observer (metrics).
func (f *RetryingFetcher) WithObserver(observer FetchObserver) *RetryingFetcher {
	f.observer = observer
	return f
}

// Fetch retrieves url using the configured retry budget.
func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	return f.FetchWithRetries(ctx, url, f.cfg.MaxRetries)
}

// FetchWithRetries retrieves url making at most retries+1 attempts. After the
// failed attempt n (0-indexed) it waits Backoff(n) before trying again.
func (f *RetryingFetcher) FetchWithRetries(ctx context.Context, url string, retries int) (Page, error) {
	if retries < 0 {
		retries = 0
	}
	total := retries + 1
	var lastErr error
	for attempt := 0; attempt < total; attempt++ {
		f.logger.Info("fetching page",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("of", total))

		start := time.Now()
		page, err := f.next.Fetch(ctx, url)
		if err == nil {
			f.observe(url, OutcomeSuccess, time.Since(start))
			f.logger.Info("fetched page", zap.String("url", url), zap.Int("status", page.StatusCode))
			f.throttle(ctx)
			return page, nil
		}
		f.observe(url, OutcomeError, time.Since(start))
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		f.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Int("of", total),
			zap.Error(err))
		if attempt == total-1 {
			break
		}
		if err := f.sleeper.Sleep(ctx, f.Backoff(attempt)); err != nil {
			return Page{}, fmt.Errorf("fetch %s backoff: %w", url, err)
		}
	}
	f.logger.Error("giving up on page", zap.String("url", url), zap.Int("attempts", total))
	return Page{}, errors.Join(ErrRetriesExhausted, lastErr)
}

// Backoff returns 2^attempt backoff units.
func (f *RetryingFetcher) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return f.cfg.BackoffUnit * time.Duration(1<<uint(attempt))
}

func (f *RetryingFetcher) throttle(ctx context.Context) {
	if f.cfg.Delay <= 0 {
		return
	}
	if err := f.sleeper.Sleep(ctx, f.cfg.Delay); err != nil {
		f.logger.Debug("request delay interrupted", zap.Error(err))
	}
}

func (f *RetryingFetcher) observe(url, outcome string, d time.Duration) {
	if f.observer != nil {
		f.observer.ObserveFetch(url, outcome, d)
	}
}
