// Package memory keeps export files in process.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Sink stores files in a map and returns memory:// URIs.
type Sink struct {
	mu    sync.RWMutex
	files map[string][]byte
	types map[string]string
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{
		files: make(map[string][]byte),
		types: make(map[string]string),
	}
}

// Put implements storage.Sink.
func (s *Sink) Put(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read export data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	s.types[name] = contentType
	return "memory://" + name, nil
}

// File returns a stored file and its content type.
func (s *Sink) File(name string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[name]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), data...), s.types[name], true
}

// Names lists stored file names in no particular order.
func (s *Sink) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for name := range s.files {
		out = append(out, name)
	}
	return out
}
