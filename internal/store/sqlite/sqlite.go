// Package sqlite stores business records in a SQLite file through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/JakeFAU/bizdir-crawler/internal/clock/system"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

// InMemory opens a private in-memory database.
const InMemory = ":memory:"

type businessRecord struct {
	ID                int64  `gorm:"primaryKey;autoIncrement"`
	CompanyName       string `gorm:"not null;index"`
	Address           *string
	PostalCode        *string `gorm:"index"`
	PhoneNumber       *string
	WebsiteURL        *string `gorm:"index"`
	CompanyNumber     *string
	Representative    *string
	EstablishedDate   *time.Time
	EmployeeCount     *int64
	ProductCategories *string
	AnnualSales       *int64
	Email             *string
	Notes             *string
	CreatedAt         time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime:false"`
	SourceURL         *string
}

func (businessRecord) TableName() string { return store.TableName }

// Backend implements store.Backend on gorm + SQLite.
type Backend struct {
	db    *gorm.DB
	clock store.Clock
}

// Open creates (if needed) and migrates the database at path.
func Open(path string, clock store.Clock, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	gormLog := gormLogger.New(
		zap.NewStdLog(logger.Named("gorm")),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// Each connection to ":memory:" is a separate database, and SQLite only
	// allows one writer anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&businessRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", store.TableName, err)
	}
	logger.Info("sqlite store ready", zap.String("path", path))
	return &Backend{db: db, clock: clock}, nil
}

// UpsertOne implements store.Backend.
func (b *Backend) UpsertOne(ctx context.Context, rec record.Record) (record.Record, error) {
	var saved record.Record
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		saved, _, err = upsert(tx, rec, b.clock.Now())
		return err
	})
	if err != nil {
		return record.Record{}, err
	}
	return saved, nil
}

// UpsertBatch implements store.Backend.
func (b *Backend) UpsertBatch(ctx context.Context, recs []record.Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	now := b.clock.Now()
	inserted := 0
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, rec := range recs {
			_, fresh, err := upsert(tx, rec, now)
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

func upsert(tx *gorm.DB, rec record.Record, now time.Time) (record.Record, bool, error) {
	if err := store.Validate(rec); err != nil {
		return record.Record{}, false, err
	}
	if key, ok := rec.Key(record.FieldWebsiteURL); ok {
		var row businessRecord
		err := tx.Where("website_url = ?", key).Order("id").Take(&row).Error
		switch {
		case err == nil:
			merged := record.Merge(fromRow(row), rec)
			merged.UpdatedAt = now
			row = toRow(merged)
			if err := tx.Save(&row).Error; err != nil {
				return record.Record{}, false, fmt.Errorf("update record %d: %w", row.ID, err)
			}
			return fromRow(row), false, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return record.Record{}, false, fmt.Errorf("lookup website_url: %w", err)
		}
	}
	fresh := rec
	fresh.ID = 0
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	row := toRow(fresh)
	if err := tx.Create(&row).Error; err != nil {
		return record.Record{}, false, fmt.Errorf("insert record: %w", err)
	}
	return fromRow(row), true, nil
}

// Search implements store.Backend. instr() keeps the name match
// case-sensitive; SQLite's LIKE folds ASCII case.
func (b *Backend) Search(ctx context.Context, params store.SearchParams) ([]record.Record, error) {
	q := b.db.WithContext(ctx).Model(&businessRecord{})
	if params.CompanyName != "" {
		q = q.Where("instr(company_name, ?) > 0", params.CompanyName)
	}
	if params.PostalCode != "" {
		q = q.Where("postal_code = ?", params.PostalCode)
	}
	var rows []businessRecord
	if err := q.Order("id").Limit(params.EffectiveLimit()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	return fromRows(rows), nil
}

// GetAll implements store.Backend.
func (b *Backend) GetAll(ctx context.Context, limit int) ([]record.Record, error) {
	q := b.db.WithContext(ctx).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []businessRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return fromRows(rows), nil
}

// Count implements store.Backend.
func (b *Backend) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := b.db.WithContext(ctx).Model(&businessRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close implements store.Backend.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func toRow(r record.Record) businessRecord {
	return businessRecord{
		ID:                r.ID,
		CompanyName:       r.CompanyName,
		Address:           r.Address,
		PostalCode:        r.PostalCode,
		PhoneNumber:       r.PhoneNumber,
		WebsiteURL:        r.WebsiteURL,
		CompanyNumber:     r.CompanyNumber,
		Representative:    r.Representative,
		EstablishedDate:   r.EstablishedDate,
		EmployeeCount:     r.EmployeeCount,
		ProductCategories: r.ProductCategories,
		AnnualSales:       r.AnnualSales,
		Email:             r.Email,
		Notes:             r.Notes,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		SourceURL:         r.SourceURL,
	}
}

func fromRow(row businessRecord) record.Record {
	return record.Record{
		ID:                row.ID,
		CompanyName:       row.CompanyName,
		Address:           row.Address,
		PostalCode:        row.PostalCode,
		PhoneNumber:       row.PhoneNumber,
		WebsiteURL:        row.WebsiteURL,
		CompanyNumber:     row.CompanyNumber,
		Representative:    row.Representative,
		EstablishedDate:   utcPtr(row.EstablishedDate),
		EmployeeCount:     row.EmployeeCount,
		ProductCategories: row.ProductCategories,
		AnnualSales:       row.AnnualSales,
		Email:             row.Email,
		Notes:             row.Notes,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
		SourceURL:         row.SourceURL,
	}
}

func fromRows(rows []businessRecord) []record.Record {
	out := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
