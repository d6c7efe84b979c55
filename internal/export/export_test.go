package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/bizdir-crawler/internal/export"
	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/storage/memory"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

type fakeSource struct {
	all      []record.Record
	found    []record.Record
	searched *store.SearchParams
	limit    int
}

func (f *fakeSource) Search(_ context.Context, params store.SearchParams) []record.Record {
	f.searched = &params
	return f.found
}

func (f *fakeSource) GetAll(_ context.Context, limit int) []record.Record {
	f.limit = limit
	return f.all
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var exportTime = time.Date(2024, 4, 1, 9, 30, 15, 0, time.UTC)

func sampleRecords() []record.Record {
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return []record.Record{
		{
			ID:              1,
			CompanyName:     "Acme, Inc.",
			PostalCode:      record.Ptr("123-4567"),
			WebsiteURL:      record.Ptr("https://acme.example"),
			EstablishedDate: record.Ptr(time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC)),
			EmployeeCount:   record.Ptr(int64(42)),
			CreatedAt:       created,
			UpdatedAt:       created,
		},
		{ID: 2, CompanyName: "株式会社テスト", CreatedAt: created, UpdatedAt: created},
	}
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	src := &fakeSource{all: sampleRecords()}
	sink := memory.New()
	exp := export.New(src, sink, fixedClock{exportTime}, zap.NewNop())

	uri, err := exp.Export(context.Background(), "CSV", store.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, "memory://business_records_20240401_093015.csv", uri)
	assert.Nil(t, src.searched, "no filter lists every record")

	data, contentType, ok := sink.File("business_records_20240401_093015.csv")
	require.True(t, ok)
	assert.Contains(t, contentType, "text/csv")
	require.True(t, bytes.HasPrefix(data, []byte("\ufeff")), "csv starts with a BOM")

	rows, err := csv.NewReader(bytes.NewReader(data[len("\ufeff"):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, record.Columns, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Acme, Inc.", rows[1][1])
	assert.Equal(t, "", rows[1][2])
	assert.Equal(t, "123-4567", rows[1][3])
	assert.Equal(t, "2001-02-03", rows[1][8])
	assert.Equal(t, "42", rows[1][9])
	assert.Equal(t, "2024-03-01T08:00:00Z", rows[1][14])
	assert.Equal(t, "株式会社テスト", rows[2][1])
}

func TestExportExcel(t *testing.T) {
	t.Parallel()

	src := &fakeSource{found: sampleRecords()[:1]}
	sink := memory.New()
	exp := export.New(src, sink, fixedClock{exportTime}, zap.NewNop())

	uri, err := exp.Export(context.Background(), export.FormatExcel, store.SearchParams{PostalCode: "123-4567", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "memory://business_records_20240401_093015.xlsx", uri)
	require.NotNil(t, src.searched)
	assert.Equal(t, "123-4567", src.searched.PostalCode)

	data, _, ok := sink.File("business_records_20240401_093015.xlsx")
	require.True(t, ok)
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	assert.Equal(t, []string{export.SheetName}, f.GetSheetList())
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, record.Columns, rows[0])
	assert.Equal(t, "Acme, Inc.", rows[1][1])
	assert.Equal(t, "42", rows[1][9])
}

func TestExportNoRecords(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	src := &fakeSource{}
	sink := memory.New()
	exp := export.New(src, sink, fixedClock{exportTime}, zap.New(core))

	_, err := exp.Export(context.Background(), export.FormatCSV, store.SearchParams{Limit: 5})
	require.ErrorIs(t, err, export.ErrNoRecords)
	assert.Equal(t, 5, src.limit)
	assert.Empty(t, sink.Names())
	assert.Equal(t, 1, logs.FilterMessage("no records to export").Len())
}

func TestExportUnsupportedFormat(t *testing.T) {
	t.Parallel()

	exp := export.New(&fakeSource{all: sampleRecords()}, memory.New(), fixedClock{exportTime}, nil)
	_, err := exp.Export(context.Background(), "pdf", store.SearchParams{})
	require.ErrorIs(t, err, export.ErrUnsupportedFormat)
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("disk full")
}

func TestExportSinkFailure(t *testing.T) {
	t.Parallel()

	exp := export.New(&fakeSource{all: sampleRecords()}, failingSink{}, fixedClock{exportTime}, nil)
	_, err := exp.Export(context.Background(), export.FormatCSV, store.SearchParams{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "disk full"))
}

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "business_records_20240401_093015.csv", export.FileName(export.FormatCSV, exportTime))
	assert.Equal(t, "business_records_20240401_093015.xlsx", export.FileName(export.FormatExcel, exportTime))
}
