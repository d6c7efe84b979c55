// Package storage defines where export files are written. Implementations
// live in the local, gcs and memory subpackages.
package storage

import (
	"context"
	"io"
)

// Sink stores a named export file and returns a URI locating it.
type Sink interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}
