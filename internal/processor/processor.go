// Package processor converts raw extracted records into canonical records and
// removes duplicates within a batch.
package processor

import (
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/normalize"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
)

// DefaultDedupKey is the field used by Deduplicate when no key is given.
const DefaultDedupKey = record.FieldWebsiteURL

// Processor applies normalization and validation policy to raw records.
type Processor struct {
	logger *zap.Logger
}

// New builds a Processor. A nil logger disables logging.
func New(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{logger: logger}
}

// ProcessOne normalizes raw into a canonical record. It reports false when the
// record has no usable company name.
func (p *Processor) ProcessOne(raw record.Raw) (record.Record, bool) {
	var rec record.Record

	name, _ := p.text(raw, record.FieldCompanyName)
	if name == nil {
		p.logger.Warn("dropping record without company name",
			zap.Any("source_url", raw[record.FieldSourceURL]))
		return record.Record{}, false
	}
	rec.CompanyName = *name

	rec.Address, _ = p.text(raw, record.FieldAddress)
	rec.PostalCode = p.mapped(raw, record.FieldPostalCode, normalize.PostalCode)
	rec.PhoneNumber = p.mapped(raw, record.FieldPhoneNumber, normalize.PhoneNumber)
	rec.WebsiteURL = p.mapped(raw, record.FieldWebsiteURL, normalize.URL)
	if s, ok := raw.String(record.FieldSourceURL); ok && s != "" {
		rec.SourceURL = &s
	}
	rec.CompanyNumber, _ = p.text(raw, record.FieldCompanyNumber)
	rec.Representative, _ = p.text(raw, record.FieldRepresentative)
	rec.ProductCategories, _ = p.text(raw, record.FieldProductCategories)
	rec.Notes, _ = p.text(raw, record.FieldNotes)
	rec.EstablishedDate = p.date(raw, record.FieldEstablishedDate)
	rec.EmployeeCount = p.number(raw, record.FieldEmployeeCount)
	if rec.EmployeeCount != nil && *rec.EmployeeCount < 0 {
		p.logger.Warn("negative employee count ignored", zap.Int64("value", *rec.EmployeeCount))
		rec.EmployeeCount = nil
	}
	rec.AnnualSales = p.number(raw, record.FieldAnnualSales)

	if s, ok := raw.String(record.FieldEmail); ok && normalize.ValidEmail(s) {
		email := strings.TrimSpace(s)
		rec.Email = &email
	}
	return rec, true
}

// ProcessBatch runs ProcessOne over raws and keeps the accepted records.
func (p *Processor) ProcessBatch(raws []record.Raw) []record.Record {
	out := make([]record.Record, 0, len(raws))
	for _, raw := range raws {
		if rec, ok := p.ProcessOne(raw); ok {
			out = append(out, rec)
		}
	}
	p.logger.Info("processed batch",
		zap.Int("accepted", len(out)),
		zap.Int("total", len(raws)))
	return out
}

// Deduplicate keeps the first record for each non-empty key value. Records
// without a key value are always kept. An empty key means DefaultDedupKey.
func (p *Processor) Deduplicate(records []record.Record, key string) []record.Record {
	if key == "" {
		key = DefaultDedupKey
	}
	if !record.IsKeyField(key) {
		p.logger.Warn("unknown dedup key, keeping every record",
			zap.String("key", key),
			zap.Int("records", len(records)))
		return append([]record.Record(nil), records...)
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]record.Record, 0, len(records))
	for _, rec := range records {
		value, ok := rec.Key(key)
		if !ok {
			out = append(out, rec)
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, rec)
	}
	if removed := len(records) - len(out); removed > 0 {
		p.logger.Info("removed duplicate records", zap.Int("removed", removed), zap.String("key", key))
	}
	return out
}

func (p *Processor) text(raw record.Raw, field string) (*string, bool) {
	s, ok := raw.String(field)
	if !ok {
		return nil, false
	}
	cleaned, ok := normalize.CleanText(s)
	if !ok {
		return nil, false
	}
	return &cleaned, true
}

func (p *Processor) mapped(raw record.Raw, field string, fn func(string) string) *string {
	s, ok := raw.String(field)
	if !ok || s == "" {
		return nil
	}
	out := fn(s)
	if out == "" {
		return nil
	}
	return &out
}

func (p *Processor) date(raw record.Raw, field string) *time.Time {
	switch v := raw[field].(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		d := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	case *time.Time:
		if v == nil {
			return nil
		}
		d := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := normalize.ParseDate(v)
		if err != nil {
			p.logger.Warn("could not parse date", zap.String("field", field), zap.String("value", v))
			return nil
		}
		return &d
	default:
		return nil
	}
}

func (p *Processor) number(raw record.Raw, field string) *int64 {
	switch v := raw[field].(type) {
	case int:
		return record.Ptr(int64(v))
	case int32:
		return record.Ptr(int64(v))
	case int64:
		return record.Ptr(v)
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil
		}
		return record.Ptr(int64(v))
	case uint32:
		return record.Ptr(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return nil
		}
		return record.Ptr(int64(v))
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		n, ok := normalize.ExtractNumber(v)
		if !ok {
			p.logger.Warn("could not extract number", zap.String("field", field), zap.String("value", v))
			return nil
		}
		return &n
	default:
		return nil
	}
}

func floatToInt(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	return record.Ptr(int64(f))
}
