package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/record"
)

// TableName is the logical table holding business records.
const TableName = "business_records"

// DefaultSearchLimit caps Search results when no limit is given.
const DefaultSearchLimit = 100

// ErrInvalidRecord is returned for records that cannot be persisted.
var ErrInvalidRecord = errors.New("invalid business record")

// Clock supplies created_at/updated_at timestamps.
type Clock interface {
	Now() time.Time
}

// SearchParams filters Search. Empty strings disable a filter.
type SearchParams struct {
	// CompanyName is a case-sensitive substring.
	CompanyName string
	// PostalCode must match exactly.
	PostalCode string
	Limit      int
}

// EffectiveLimit returns Limit or DefaultSearchLimit.
func (p SearchParams) EffectiveLimit() int {
	if p.Limit <= 0 {
		return DefaultSearchLimit
	}
	return p.Limit
}

// Backend is a concrete record store.
type Backend interface {
	// UpsertOne inserts rec, or merges it into the row sharing its website URL.
	UpsertOne(ctx context.Context, rec record.Record) (record.Record, error)
	// UpsertBatch upserts every record in one transaction and returns the
	// number of fresh inserts. On error nothing is applied.
	UpsertBatch(ctx context.Context, recs []record.Record) (int, error)
	Search(ctx context.Context, params SearchParams) ([]record.Record, error)
	// GetAll returns records ordered by id; limit <= 0 means no limit.
	GetAll(ctx context.Context, limit int) ([]record.Record, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Validate checks the invariants every backend enforces before writing.
func Validate(rec record.Record) error {
	if rec.CompanyName == "" {
		return fmt.Errorf("%w: company name is required", ErrInvalidRecord)
	}
	return nil
}

// Store is the error-absorbing boundary around a Backend.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// New wraps backend.
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}
}

// UpsertOne persists rec. A nil result means the record was not saved.
func (s *Store) UpsertOne(ctx context.Context, rec record.Record) *record.Record {
	saved, err := s.backend.UpsertOne(ctx, rec)
	if err != nil {
		s.logger.Error("failed to upsert record",
			zap.String("company_name", rec.CompanyName),
			zap.Error(err))
		return nil
	}
	return &saved
}

// UpsertBatch persists recs atomically and returns the count of new rows.
// Any failure rolls the whole batch back and yields 0.
func (s *Store) UpsertBatch(ctx context.Context, recs []record.Record) int {
	if len(recs) == 0 {
		return 0
	}
	inserted, err := s.backend.UpsertBatch(ctx, recs)
	if err != nil {
		s.logger.Error("batch upsert rolled back",
			zap.Int("records", len(recs)),
			zap.Error(err))
		return 0
	}
	s.logger.Info("batch upsert committed",
		zap.Int("records", len(recs)),
		zap.Int("inserted", inserted),
		zap.Int("updated", len(recs)-inserted))
	return inserted
}

// Search returns matching records, or an empty slice on failure.
func (s *Store) Search(ctx context.Context, params SearchParams) []record.Record {
	recs, err := s.backend.Search(ctx, params)
	if err != nil {
		s.logger.Error("search failed",
			zap.String("company_name", params.CompanyName),
			zap.String("postal_code", params.PostalCode),
			zap.Error(err))
		return []record.Record{}
	}
	return nonNil(recs)
}

// GetAll returns up to limit records (all when limit <= 0).
func (s *Store) GetAll(ctx context.Context, limit int) []record.Record {
	recs, err := s.backend.GetAll(ctx, limit)
	if err != nil {
		s.logger.Error("list records failed", zap.Int("limit", limit), zap.Error(err))
		return []record.Record{}
	}
	return nonNil(recs)
}

// Count returns the number of stored records, or 0 on failure.
func (s *Store) Count(ctx context.Context) int64 {
	n, err := s.backend.Count(ctx)
	if err != nil {
		s.logger.Error("count records failed", zap.Error(err))
		return 0
	}
	return n
}

// Close releases the backend.
func (s *Store) Close() error {
	if err := s.backend.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func nonNil(recs []record.Record) []record.Record {
	if recs == nil {
		return []record.Record{}
	}
	return recs
}
