package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRetriesExhausted is returned once every fetch attempt for a URL failed.
var ErrRetriesExhausted = errors.New("fetch retries exhausted")

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// TransportError describes a failed fetch attempt: a connection failure, a
// timeout, or a non-success HTTP status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
