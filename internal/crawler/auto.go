package crawler

import (
	"context"

	"go.uber.org/zap"
)

// AutoFetcher fetches statically and re-renders with a headless browser when
// the detector decides the static body is an empty application shell.
type AutoFetcher struct {
	static   PageFetcher
	headless PageFetcher
	detector HeadlessDetector
	logger   *zap.Logger
}

// NewAutoFetcher wires the two fetch strategies together. A nil headless
// fetcher disables promotion.
func NewAutoFetcher(static, headless PageFetcher, detector HeadlessDetector, logger *zap.Logger) *AutoFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = NewHeuristic(0)
	}
	return &AutoFetcher{static: static, headless: headless, detector: detector, logger: logger}
}

// Fetch implements PageFetcher.
func (a *AutoFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	page, err := a.static.Fetch(ctx, url)
	if err != nil {
		return Page{}, err
	}
	if a.headless == nil || !a.detector.ShouldPromote(page) {
		return page, nil
	}
	a.logger.Info("promoting fetch to headless", zap.String("url", url))
	rendered, err := a.headless.Fetch(ctx, url)
	if err != nil {
		a.logger.Warn("headless fetch failed; using static body", zap.String("url", url), zap.Error(err))
		return page, nil
	}
	return rendered, nil
}
