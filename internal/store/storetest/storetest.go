// Package storetest holds the behavioural suite every store.Backend passes.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bizdir-crawler/internal/record"
	"github.com/JakeFAU/bizdir-crawler/internal/store"
)

// Clock is a manually advanced store.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a Clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
}

// Now implements store.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory opens a fresh, empty backend driven by clock.
type Factory func(t *testing.T, clock store.Clock) store.Backend

// Run exercises the store.Backend contract.
func Run(t *testing.T, open Factory) {
	t.Helper()

	t.Run("upsert round trip", func(t *testing.T) { testUpsertRoundTrip(t, open) })
	t.Run("unkeyed records always insert", func(t *testing.T) { testUnkeyedInsert(t, open) })
	t.Run("nil fields never clobber", func(t *testing.T) { testNilFieldsKept(t, open) })
	t.Run("batch counts inserts", func(t *testing.T) { testBatchCounts(t, open) })
	t.Run("batch rolls back", func(t *testing.T) { testBatchRollback(t, open) })
	t.Run("search", func(t *testing.T) { testSearch(t, open) })
	t.Run("get all and count", func(t *testing.T) { testGetAll(t, open) })
	t.Run("rejects empty name", func(t *testing.T) { testRejectsEmptyName(t, open) })
}

func testUpsertRoundTrip(t *testing.T, open Factory) {
	ctx := context.Background()
	clock := NewClock()
	b := open(t, clock)

	first, err := b.UpsertOne(ctx, record.Record{
		CompanyName: "Alpha",
		WebsiteURL:  record.Ptr("https://a.example/"),
		Address:     record.Ptr("Tokyo"),
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	assert.True(t, first.CreatedAt.Equal(clock.Now()))
	assert.True(t, first.UpdatedAt.Equal(first.CreatedAt))

	clock.Advance(time.Hour)
	second, err := b.UpsertOne(ctx, record.Record{
		CompanyName: "Alpha Holdings",
		WebsiteURL:  record.Ptr("https://a.example/"),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alpha Holdings", second.CompanyName)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt), "created_at must not move")
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "updated_at must advance")

	all, err := b.GetAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Alpha Holdings", all[0].CompanyName)
	require.NotNil(t, all[0].Address)
	assert.Equal(t, "Tokyo", *all[0].Address)
	assert.True(t, all[0].CreatedAt.Equal(first.CreatedAt))
	assert.True(t, all[0].UpdatedAt.Equal(clock.Now()))
}

func testUnkeyedInsert(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t, NewClock())

	for i := 0; i < 2; i++ {
		_, err := b.UpsertOne(ctx, record.Record{CompanyName: "Same"})
		require.NoError(t, err)
	}
	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testNilFieldsKept(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t, NewClock())
	established := time.Date(1999, 3, 4, 0, 0, 0, 0, time.UTC)

	_, err := b.UpsertOne(ctx, record.Record{
		CompanyName:     "Beta",
		WebsiteURL:      record.Ptr("https://b.example"),
		PhoneNumber:     record.Ptr("03-1111-2222"),
		EmployeeCount:   record.Ptr(int64(40)),
		EstablishedDate: &established,
	})
	require.NoError(t, err)
	got, err := b.UpsertOne(ctx, record.Record{
		CompanyName:   "Beta",
		WebsiteURL:    record.Ptr("https://b.example"),
		EmployeeCount: record.Ptr(int64(0)),
		Email:         record.Ptr("info@b.example"),
	})
	require.NoError(t, err)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, "03-1111-2222", *got.PhoneNumber)
	require.NotNil(t, got.EmployeeCount)
	assert.Equal(t, int64(0), *got.EmployeeCount, "explicit zero overwrites")
	require.NotNil(t, got.EstablishedDate)
	assert.True(t, established.Equal(*got.EstablishedDate))
	require.NotNil(t, got.Email)
	assert.Equal(t, "info@b.example", *got.Email)
}

func testBatchCounts(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t, NewClock())

	_, err := b.UpsertOne(ctx, record.Record{CompanyName: "Existing", WebsiteURL: record.Ptr("https://e.example")})
	require.NoError(t, err)

	inserted, err := b.UpsertBatch(ctx, []record.Record{
		{CompanyName: "Existing Renamed", WebsiteURL: record.Ptr("https://e.example")},
		{CompanyName: "New One", WebsiteURL: record.Ptr("https://n.example")},
		{CompanyName: "New One Again", WebsiteURL: record.Ptr("https://n.example")},
		{CompanyName: "No Site"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := b.Search(ctx, store.SearchParams{CompanyName: "New One"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "New One Again", got[0].CompanyName)

	inserted, err = b.UpsertBatch(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func testBatchRollback(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t, NewClock())

	_, err := b.UpsertOne(ctx, record.Record{CompanyName: "Keep", WebsiteURL: record.Ptr("https://k.example")})
	require.NoError(t, err)

	inserted, err := b.UpsertBatch(ctx, []record.Record{
		{CompanyName: "Changed", WebsiteURL: record.Ptr("https://k.example")},
		{CompanyName: "Fresh"},
		{CompanyName: ""},
	})
	require.ErrorIs(t, err, store.ErrInvalidRecord)
	assert.Zero(t, inserted)

	all, err := b.GetAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Keep", all[0].CompanyName)
}

func testSearch(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t, NewClock())

	_, err := b.UpsertBatch(ctx, []record.Record{
		{CompanyName: "Tokyo Trading", PostalCode: record.Ptr("100-0001")},
		{CompanyName: "tokyo lowercase", PostalCode: record.Ptr("100-0001")},
		{CompanyName: "Osaka Tokyo Branch", PostalCode: record.Ptr("530-0001")},
		{CompanyName: "Nagoya Works"},
	})
	require.NoError(t, err)

	names := func(recs []record.Record) []string {
		out := make([]string, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.CompanyName)
		}
		return out
	}

	got, err := b.Search(ctx, store.SearchParams{CompanyName: "Tokyo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tokyo Trading", "Osaka Tokyo Branch"}, names(got), "substring match is case-sensitive")

	got, err = b.Search(ctx, store.SearchParams{PostalCode: "100-0001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tokyo Trading", "tokyo lowercase"}, names(got))

	got, err = b.Search(ctx, store.SearchParams{CompanyName: "Tokyo", PostalCode: "530-0001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Osaka Tokyo Branch"}, names(got))

	got, err = b.Search(ctx, store.SearchParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = b.Search(ctx, store.SearchParams{CompanyName: "Kyoto"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testGetAll(t *testing.T, open Factory) {
	ctx := context.Background()
	b := open(t, NewClock())

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, name := range []string{"A", "B", "C"} {
		_, err := b.UpsertOne(ctx, record.Record{CompanyName: name})
		require.NoError(t, err)
	}
	all, err := b.GetAll(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Less(t, all[0].ID, all[1].ID)

	limited, err := b.GetAll(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "B", limited[1].CompanyName)
}

func testRejectsEmptyName(t *testing.T, open Factory) {
	b := open(t, NewClock())
	_, err := b.UpsertOne(context.Background(), record.Record{WebsiteURL: record.Ptr("https://x.example")})
	require.ErrorIs(t, err, store.ErrInvalidRecord)
}
