package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// RobotsTimeout bounds the advisory robots.txt request.
const RobotsTimeout = 10 * time.Second

// RobotsAdvisor performs a best-effort, non-enforcing robots.txt check.
type RobotsAdvisor struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewRobotsAdvisor builds a RobotsAdvisor with a fixed request timeout.
func NewRobotsAdvisor(userAgent string, logger *zap.Logger) *RobotsAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsAdvisor{
		client:    &http.Client{Timeout: RobotsTimeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Check reports whether baseURL's host allows crawling. It returns false only
// when robots.txt contains "disallow: /" in any case; every failure allows.
func (r *RobotsAdvisor) Check(ctx context.Context, baseURL string) bool {
	body, err := r.load(ctx, baseURL)
	if err != nil {
		r.logger.Debug("robots check skipped; allowing", zap.String("url", baseURL), zap.Error(err))
		return true
	}
	if disallowsAll(body) {
		r.logger.Warn("robots.txt disallows all crawling", zap.String("url", baseURL))
		return false
	}
	return true
}

func (r *RobotsAdvisor) load(ctx context.Context, baseURL string) ([]byte, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("url %q has no scheme or host", baseURL)
	}
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("robots status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	return body, nil
}

// disallowsAll is a lower-cased substring test, so any "disallow: /..."
// path counts while "disallow:/" does not.
func disallowsAll(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), []byte("disallow: /"))
}
