// Package memory is an in-process record backend used by tests and dry runs.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/bizdir-crawler/internal/clock/system"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

var errClosed = errors.New("memory store closed")

// Backend keeps records in id order behind a mutex. Batches run against a
// copy of the table that replaces the live one only on success.
type Backend struct {
	mu     sync.RWMutex
	tbl    table
	clock  store.Clock
	closed bool
}

type table struct {
	rows   []record.Record
	byURL  map[string]int
	nextID int64
}

// New returns an empty Backend. A nil clock uses the system clock.
func New(clock store.Clock) *Backend {
	if clock == nil {
		clock = system.New()
	}
	return &Backend{
		tbl:   table{byURL: map[string]int{}, nextID: 1},
		clock: clock,
	}
}

// UpsertOne implements store.Backend.
func (b *Backend) UpsertOne(_ context.Context, rec record.Record) (record.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return record.Record{}, errClosed
	}
	saved, _, err := b.tbl.upsert(rec, b.clock.Now())
	if err != nil {
		return record.Record{}, err
	}
	return saved.Clone(), nil
}

// UpsertBatch implements store.Backend.
func (b *Backend) UpsertBatch(ctx context.Context, recs []record.Record) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errClosed
	}
	work := b.tbl.clone()
	now := b.clock.Now()
	inserted := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		_, fresh, err := work.upsert(rec, now)
		if err != nil {
			return 0, err
		}
		if fresh {
			inserted++
		}
	}
	b.tbl = work
	return inserted, nil
}

// Search implements store.Backend.
func (b *Backend) Search(_ context.Context, params store.SearchParams) ([]record.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errClosed
	}
	limit := params.EffectiveLimit()
	out := []record.Record{}
	for _, row := range b.tbl.rows {
		if len(out) == limit {
			break
		}
		if params.CompanyName != "" && !strings.Contains(row.CompanyName, params.CompanyName) {
			continue
		}
		if params.PostalCode != "" && (row.PostalCode == nil || *row.PostalCode != params.PostalCode) {
			continue
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

// GetAll implements store.Backend.
func (b *Backend) GetAll(_ context.Context, limit int) ([]record.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errClosed
	}
	n := len(b.tbl.rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]record.Record, 0, n)
	for _, row := range b.tbl.rows[:n] {
		out = append(out, row.Clone())
	}
	return out, nil
}

// Count implements store.Backend.
func (b *Backend) Count(context.Context) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errClosed
	}
	return int64(len(b.tbl.rows)), nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (t *table) upsert(rec record.Record, now time.Time) (record.Record, bool, error) {
	if err := store.Validate(rec); err != nil {
		return record.Record{}, false, err
	}
	key, keyed := rec.Key(record.FieldWebsiteURL)
	if keyed {
		if idx, ok := t.byURL[key]; ok {
			merged := record.Merge(t.rows[idx], rec.Clone())
			merged.UpdatedAt = now
			t.rows[idx] = merged
			return merged, false, nil
		}
	}
	fresh := rec.Clone()
	fresh.ID = t.nextID
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	t.nextID++
	t.rows = append(t.rows, fresh)
	if keyed {
		t.byURL[key] = len(t.rows) - 1
	}
	return fresh, true, nil
}

func (t table) clone() table {
	out := table{
		rows:   make([]record.Record, len(t.rows)),
		byURL:  make(map[string]int, len(t.byURL)),
		nextID: t.nextID,
	}
	copy(out.rows, t.rows)
	for k, v := range t.byURL {
		out.byURL[k] = v
	}
	return out
}
