package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverwritesOnlySetFields(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	existing := Record{
		ID:            7,
		CompanyName:   "Old Co",
		Address:       Ptr("1-1 Chiyoda"),
		PhoneNumber:   Ptr("03-1234-5678"),
		WebsiteURL:    Ptr("https://a.example/"),
		EmployeeCount: Ptr(int64(10)),
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	incoming := Record{
		ID:            99,
		CompanyName:   "New Co",
		PhoneNumber:   Ptr("090-1111-2222"),
		WebsiteURL:    Ptr("https://a.example/"),
		EmployeeCount: Ptr(int64(0)),
		CreatedAt:     created.Add(time.Hour),
	}

	merged := Merge(existing, incoming)

	assert.Equal(t, int64(7), merged.ID)
	assert.Equal(t, created, merged.CreatedAt)
	assert.Equal(t, "New Co", merged.CompanyName)
	require.NotNil(t, merged.Address)
	assert.Equal(t, "1-1 Chiyoda", *merged.Address)
	assert.Equal(t, "090-1111-2222", *merged.PhoneNumber)
	assert.Equal(t, int64(0), *merged.EmployeeCount)
	assert.Nil(t, merged.Email)
}

func TestMergeKeepsNameWhenIncomingEmpty(t *testing.T) {
	t.Parallel()

	merged := Merge(Record{CompanyName: "Keep"}, Record{})
	assert.Equal(t, "Keep", merged.CompanyName)
}

func TestMergeDoesNotAliasIncoming(t *testing.T) {
	t.Parallel()

	incoming := Record{Notes: Ptr("first")}
	merged := Merge(Record{}, incoming)
	*incoming.Notes = "mutated"
	assert.Equal(t, "first", *merged.Notes)
}

func TestKey(t *testing.T) {
	t.Parallel()

	r := Record{CompanyName: "Acme", WebsiteURL: Ptr("")}
	_, ok := r.Key(FieldWebsiteURL)
	assert.False(t, ok)
	assert.False(t, r.HasKey())

	v, ok := r.Key(FieldCompanyName)
	assert.True(t, ok)
	assert.Equal(t, "Acme", v)

	r.WebsiteURL = Ptr("https://acme.example")
	assert.True(t, r.HasKey())
}

func TestKeyCoversEveryField(t *testing.T) {
	t.Parallel()

	established := time.Date(2001, 4, 1, 0, 0, 0, 0, time.UTC)
	r := Record{
		CompanyName:       "Acme",
		Address:           Ptr("Tokyo"),
		PostalCode:        Ptr("100-0001"),
		PhoneNumber:       Ptr("03-1234-5678"),
		WebsiteURL:        Ptr("https://acme.example"),
		CompanyNumber:     Ptr("1234567890123"),
		Representative:    Ptr("Yamada"),
		EstablishedDate:   &established,
		EmployeeCount:     Ptr(int64(0)),
		ProductCategories: Ptr("tools"),
		AnnualSales:       Ptr(int64(5000)),
		Email:             Ptr("info@acme.example"),
		Notes:             Ptr("note"),
		SourceURL:         Ptr("https://dir.example"),
	}
	want := map[string]string{
		FieldCompanyName:       "Acme",
		FieldAddress:           "Tokyo",
		FieldPostalCode:        "100-0001",
		FieldPhoneNumber:       "03-1234-5678",
		FieldWebsiteURL:        "https://acme.example",
		FieldCompanyNumber:     "1234567890123",
		FieldRepresentative:    "Yamada",
		FieldEstablishedDate:   "2001-04-01",
		FieldEmployeeCount:     "0",
		FieldProductCategories: "tools",
		FieldAnnualSales:       "5000",
		FieldEmail:             "info@acme.example",
		FieldNotes:             "note",
		FieldSourceURL:         "https://dir.example",
	}
	for field, value := range want {
		assert.True(t, IsKeyField(field), field)
		got, ok := r.Key(field)
		assert.True(t, ok, field)
		assert.Equal(t, value, got, field)

		_, ok = Record{}.Key(field)
		assert.False(t, ok, "empty record has no %s", field)
	}

	assert.False(t, IsKeyField("fax"))
	_, ok := r.Key("fax")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	r := Record{Address: Ptr("a"), AnnualSales: Ptr(int64(5))}
	c := r.Clone()
	*c.Address = "b"
	*c.AnnualSales = 6
	assert.Equal(t, "a", *r.Address)
	assert.Equal(t, int64(5), *r.AnnualSales)
}

func TestMarshalJSON(t *testing.T) {
	t.Parallel()

	date := time.Date(1999, 4, 1, 0, 0, 0, 0, time.UTC)
	r := Record{ID: 1, CompanyName: "Acme", EstablishedDate: &date}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1999-04-01", decoded["established_date"])
	assert.Equal(t, "Acme", decoded["company_name"])
	assert.Nil(t, decoded["created_at"])
	assert.Contains(t, decoded, "email")
}

func TestRawString(t *testing.T) {
	t.Parallel()

	raw := Raw{FieldCompanyName: "Acme", FieldEmployeeCount: 12, FieldNotes: nil}
	s, ok := raw.String(FieldCompanyName)
	assert.True(t, ok)
	assert.Equal(t, "Acme", s)
	_, ok = raw.String(FieldEmployeeCount)
	assert.False(t, ok)
	_, ok = raw.String(FieldNotes)
	assert.False(t, ok)
}
