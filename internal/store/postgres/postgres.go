// Package postgres stores business records in Postgres through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/clock/system"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the backend uses; pgxmock satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// querier is implemented by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectColumns = `id, company_name, address, postal_code, phone_number, website_url,
	company_number, representative, established_date, employee_count,
	product_categories, annual_sales, email, notes, created_at, updated_at, source_url`

// Schema bootstraps the records table and its lookup indexes.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS business_records (
	id                 BIGSERIAL PRIMARY KEY,
	company_name       TEXT NOT NULL,
	address            TEXT,
	postal_code        TEXT,
	phone_number       TEXT,
	website_url        TEXT,
	company_number     TEXT,
	representative     TEXT,
	established_date   DATE,
	employee_count     BIGINT,
	product_categories TEXT,
	annual_sales       BIGINT,
	email              TEXT,
	notes              TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	source_url         TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_business_records_company_name ON business_records (company_name)`,
	`CREATE INDEX IF NOT EXISTS idx_business_records_postal_code ON business_records (postal_code)`,
	`CREATE INDEX IF NOT EXISTS idx_business_records_website_url ON business_records (website_url)`,
}

const (
	lookupByWebsiteSQL = `SELECT ` + selectColumns + `
FROM business_records WHERE website_url = $1 ORDER BY id LIMIT 1 FOR UPDATE`

	insertSQL = `INSERT INTO business_records (
	company_name, address, postal_code, phone_number, website_url,
	company_number, representative, established_date, employee_count,
	product_categories, annual_sales, email, notes, created_at, updated_at, source_url
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id`

	updateSQL = `UPDATE business_records SET
	company_name = $2, address = $3, postal_code = $4, phone_number = $5,
	website_url = $6, company_number = $7, representative = $8,
	established_date = $9, employee_count = $10, product_categories = $11,
	annual_sales = $12, email = $13, notes = $14, updated_at = $15, source_url = $16
WHERE id = $1`

	searchSQL = `SELECT ` + selectColumns + `
FROM business_records
WHERE ($1::text = '' OR strpos(company_name, $1::text) > 0)
  AND ($2::text = '' OR postal_code = $2::text)
ORDER BY id LIMIT $3`

	getAllSQL     = `SELECT ` + selectColumns + ` FROM business_records ORDER BY id`
	getAllLimited = getAllSQL + ` LIMIT $1`
	countSQL      = `SELECT count(*) FROM business_records`
)

// Backend implements store.Backend on pgx.
type Backend struct {
	pool  pool
	clock store.Clock
}

// Open connects, bootstraps the schema and returns a Backend.
func Open(ctx context.Context, cfg Config, clock store.Clock, logger *zap.Logger) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required for postgres")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b, err := NewWithPool(p, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := b.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	logger.Info("postgres store ready", zap.String("host", poolCfg.ConnConfig.Host))
	return b, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(p pool, clock store.Clock) (*Backend, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = system.New()
	}
	return &Backend{pool: p, clock: clock}, nil
}

// EnsureSchema creates the table and indexes when missing.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := b.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// UpsertOne implements store.Backend.
func (b *Backend) UpsertOne(ctx context.Context, rec record.Record) (record.Record, error) {
	var saved record.Record
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		saved, _, err = upsert(ctx, tx, rec, b.clock.Now())
		return err
	})
	return saved, err
}

// UpsertBatch implements store.Backend.
func (b *Backend) UpsertBatch(ctx context.Context, recs []record.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	now := b.clock.Now()
	inserted := 0
	err := b.inTx(ctx, func(tx pgx.Tx) error {
		for i, rec := range recs {
			_, fresh, err := upsert(ctx, tx, rec, now)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			if fresh {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (b *Backend) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, q querier, rec record.Record, now time.Time) (record.Record, bool, error) {
	if err := store.Validate(rec); err != nil {
		return record.Record{}, false, err
	}
	if key, ok := rec.Key(record.FieldWebsiteURL); ok {
		existing, err := scanRecord(q.QueryRow(ctx, lookupByWebsiteSQL, key))
		switch {
		case err == nil:
			merged := record.Merge(existing, rec)
			merged.UpdatedAt = now
			if _, err := q.Exec(ctx, updateSQL, updateArgs(merged)...); err != nil {
				return record.Record{}, false, fmt.Errorf("update record %d: %w", merged.ID, err)
			}
			return merged, false, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return record.Record{}, false, fmt.Errorf("lookup website_url: %w", err)
		}
	}
	fresh := rec
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	if err := q.QueryRow(ctx, insertSQL, insertArgs(fresh)...).Scan(&fresh.ID); err != nil {
		return record.Record{}, false, fmt.Errorf("insert record: %w", err)
	}
	return fresh, true, nil
}

// Search implements store.Backend. strpos keeps the name match case-sensitive.
func (b *Backend) Search(ctx context.Context, params store.SearchParams) ([]record.Record, error) {
	return b.query(ctx, searchSQL, params.CompanyName, params.PostalCode, params.EffectiveLimit())
}

// GetAll implements store.Backend.
func (b *Backend) GetAll(ctx context.Context, limit int) ([]record.Record, error) {
	if limit > 0 {
		return b.query(ctx, getAllLimited, limit)
	}
	return b.query(ctx, getAllSQL)
}

// Count implements store.Backend.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.pool.QueryRow(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func (b *Backend) query(ctx context.Context, sql string, args ...any) ([]record.Record, error) {
	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []record.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (record.Record, error) {
	var r record.Record
	err := row.Scan(
		&r.ID,
		&r.CompanyName,
		&r.Address,
		&r.PostalCode,
		&r.PhoneNumber,
		&r.WebsiteURL,
		&r.CompanyNumber,
		&r.Representative,
		&r.EstablishedDate,
		&r.EmployeeCount,
		&r.ProductCategories,
		&r.AnnualSales,
		&r.Email,
		&r.Notes,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.SourceURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record.Record{}, err
		}
		return record.Record{}, fmt.Errorf("scan record: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func insertArgs(r record.Record) []any {
	return []any{
		r.CompanyName,
		r.Address,
		r.PostalCode,
		r.PhoneNumber,
		r.WebsiteURL,
		r.CompanyNumber,
		r.Representative,
		r.EstablishedDate,
		r.EmployeeCount,
		r.ProductCategories,
		r.AnnualSales,
		r.Email,
		r.Notes,
		r.CreatedAt,
		r.UpdatedAt,
		r.SourceURL,
	}
}

func updateArgs(r record.Record) []any {
	return []any{
		r.ID,
		r.CompanyName,
		r.Address,
		r.PostalCode,
		r.PhoneNumber,
		r.WebsiteURL,
		r.CompanyNumber,
		r.Representative,
		r.EstablishedDate,
		r.EmployeeCount,
		r.ProductCategories,
		r.AnnualSales,
		r.Email,
		r.Notes,
		r.UpdatedAt,
		r.SourceURL,
	}
}
