// Package export writes stored business records to CSV or Excel files
// through a storage.Sink.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/storage"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

// Supported formats.
const (
	FormatCSV   = "csv"
	FormatExcel = "excel"
)

// SheetName is the worksheet holding exported rows.
const SheetName = store.TableName

const (
	filePrefix      = "business_records_"
	timestampLayout = "20060102_150405"
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	utf8BOM         = "\ufeff"
)

var (
	// ErrNoRecords is returned when the query matched nothing.
	ErrNoRecords = errors.New("no records to export")
	// ErrUnsupportedFormat is returned for formats other than csv and excel.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// Source supplies records to export. *store.Store satisfies it.
type Source interface {
	Search(ctx context.Context, params store.SearchParams) []record.Record
	GetAll(ctx context.Context, limit int) []record.Record
}

// Clock stamps export file names.
type Clock interface {
	Now() time.Time
}

// Exporter renders records and hands the file to a sink.
type Exporter struct {
	source Source
	sink   storage.Sink
	clock  Clock
	logger *zap.Logger
}

// New creates an Exporter.
func New(source Source, sink storage.Sink, clock Clock, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{source: source, sink: sink, clock: clock, logger: logger}
}

// ParseFormat normalizes a user supplied format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case FormatCSV, FormatExcel:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// FileName returns the export file name for format at t.
func FileName(format string, t time.Time) string {
	ext := "csv"
	if format == FormatExcel {
		ext = "xlsx"
	}
	return filePrefix + t.Format(timestampLayout) + "." + ext
}

// Export writes the selected records and returns the sink URI. Records come
// from Search when params carries a filter, otherwise from GetAll.
func (e *Exporter) Export(ctx context.Context, format string, params store.SearchParams) (string, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return "", err
	}

	var recs []record.Record
	if params.CompanyName != "" || params.PostalCode != "" {
		recs = e.source.Search(ctx, params)
	} else {
		recs = e.source.GetAll(ctx, params.Limit)
	}
	if len(recs) == 0 {
		e.logger.Warn("no records to export", zap.String("format", format))
		return "", ErrNoRecords
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case FormatExcel:
		data, err = renderExcel(recs)
		contentType = xlsxContentType
	default:
		data, err = renderCSV(recs)
		contentType = csvContentType
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", format, err)
	}

	name := FileName(format, e.clock.Now())
	uri, err := e.sink.Put(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	e.logger.Info("exported records",
		zap.String("format", format),
		zap.String("uri", uri),
		zap.Int("records", len(recs)))
	return uri, nil
}

func renderCSV(recs []record.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(record.Columns); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		cells := cellValues(rec)
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = csvCell(c)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func csvCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	default:
		return fmt.Sprint(c)
	}
}

func renderExcel(recs []record.Record) (data []byte, err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, err
	}
	header := make([]any, len(record.Columns))
	for i, col := range record.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, err
	}
	for i, rec := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := cellValues(rec)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// cellValues returns one value per record.Columns entry. Absent fields are
// nil, numbers stay int64 so spreadsheets keep them numeric.
func cellValues(rec record.Record) []any {
	row := []any{
		rec.ID,
		rec.CompanyName,
		str(rec.Address),
		str(rec.PostalCode),
		str(rec.PhoneNumber),
		str(rec.WebsiteURL),
		str(rec.CompanyNumber),
		str(rec.Representative),
		nil,
		num(rec.EmployeeCount),
		str(rec.ProductCategories),
		num(rec.AnnualSales),
		str(rec.Email),
		str(rec.Notes),
		stamp(rec.CreatedAt),
		stamp(rec.UpdatedAt),
		str(rec.SourceURL),
	}
	if rec.EstablishedDate != nil {
		row[8] = rec.EstablishedDate.Format(record.DateLayout)
	}
	return row
}

func str(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func num(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func stamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
