package crawler

import (
	"context"
	"time"
)

// PageFetcher performs a single fetch attempt for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Sleeper blocks for a duration (swapped out in tests).
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// HeadlessDetector decides whether a statically fetched page needs rendering.
type HeadlessDetector interface {
	ShouldPromote(page Page) bool
}

// FetchObserver receives per-attempt outcomes.
type FetchObserver interface {
	ObserveFetch(url string, outcome string, duration time.Duration)
}
