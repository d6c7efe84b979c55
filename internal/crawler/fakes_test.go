package crawler

import (
	"context"
	"errors"
	"sync"
	"time"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	page Page
	err  error
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	res := f.results[idx]
	if res.err == nil && res.page.URL == "" {
		res.page.URL = url
	}
	return res.page, res.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSleeper struct {
	mu     sync.Mutex
	slept  []time.Duration
	failAt int
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	if s.failAt > 0 && len(s.slept) == s.failAt {
		return errors.New("interrupted")
	}
	return nil
}

func (s *recordingSleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) ObserveFetch(_ string, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func statusErr(url string, code int) error {
	return &TransportError{URL: url, StatusCode: code}
}
