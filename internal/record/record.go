// Package record defines the canonical business record and the raw field map
// produced by extractors.
package record

import (
	"encoding/json"
	"strconv"
	"time"
)

// Field names used as keys in Raw maps and as dedup keys.
const (
	FieldCompanyName       = "company_name"
	FieldAddress           = "address"
	FieldPostalCode        = "postal_code"
	FieldPhoneNumber       = "phone_number"
	FieldWebsiteURL        = "website_url"
	FieldCompanyNumber     = "company_number"
	FieldRepresentative    = "representative"
	FieldEstablishedDate   = "established_date"
	FieldEmployeeCount     = "employee_count"
	FieldProductCategories = "product_categories"
	FieldAnnualSales       = "annual_sales"
	FieldEmail             = "email"
	FieldNotes             = "notes"
	FieldSourceURL         = "source_url"
)

// DateLayout is the wire format for EstablishedDate.
const DateLayout = "2006-01-02"

// Raw is a loosely typed record as scraped from a page.
type Raw map[string]any

// String returns the value for key when it is a string.
func (r Raw) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Record is a normalized business record. Optional attributes are nil when absent.
type Record struct {
	ID                int64
	CompanyName       string
	Address           *string
	PostalCode        *string
	PhoneNumber       *string
	WebsiteURL        *string
	CompanyNumber     *string
	Representative    *string
	EstablishedDate   *time.Time
	EmployeeCount     *int64
	ProductCategories *string
	AnnualSales       *int64
	Email             *string
	Notes             *string
	SourceURL         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Key returns the value of the named field as a dedup key. The boolean is
// false when the field is unset, empty, or not a record field.
func (r Record) Key(field string) (string, bool) {
	switch field {
	case FieldCompanyName:
		return r.CompanyName, r.CompanyName != ""
	case FieldEstablishedDate:
		if r.EstablishedDate == nil {
			return "", false
		}
		return r.EstablishedDate.Format(DateLayout), true
	case FieldEmployeeCount:
		return intKey(r.EmployeeCount)
	case FieldAnnualSales:
		return intKey(r.AnnualSales)
	}
	v, known := r.stringFields()[field]
	if !known || v == nil || *v == "" {
		return "", false
	}
	return *v, true
}

// IsKeyField reports whether field names a record attribute usable by Key.
func IsKeyField(field string) bool {
	switch field {
	case FieldCompanyName, FieldEstablishedDate, FieldEmployeeCount, FieldAnnualSales:
		return true
	}
	_, ok := Record{}.stringFields()[field]
	return ok
}

func (r Record) stringFields() map[string]*string {
	return map[string]*string{
		FieldAddress:           r.Address,
		FieldPostalCode:        r.PostalCode,
		FieldPhoneNumber:       r.PhoneNumber,
		FieldWebsiteURL:        r.WebsiteURL,
		FieldCompanyNumber:     r.CompanyNumber,
		FieldRepresentative:    r.Representative,
		FieldProductCategories: r.ProductCategories,
		FieldEmail:             r.Email,
		FieldNotes:             r.Notes,
		FieldSourceURL:         r.SourceURL,
	}
}

func intKey(v *int64) (string, bool) {
	if v == nil {
		return "", false
	}
	return strconv.FormatInt(*v, 10), true
}

// HasKey reports whether the record carries a non-empty website URL.
func (r Record) HasKey() bool {
	_, ok := r.Key(FieldWebsiteURL)
	return ok
}

// Merge overlays the set fields of incoming onto existing. Nil optional fields
// and an empty company name never clear existing values. ID and CreatedAt
// always come from existing; UpdatedAt is left for the store to stamp.
func Merge(existing, incoming Record) Record {
	out := existing
	if incoming.CompanyName != "" {
		out.CompanyName = incoming.CompanyName
	}
	out.Address = pick(existing.Address, incoming.Address)
	out.PostalCode = pick(existing.PostalCode, incoming.PostalCode)
	out.PhoneNumber = pick(existing.PhoneNumber, incoming.PhoneNumber)
	out.WebsiteURL = pick(existing.WebsiteURL, incoming.WebsiteURL)
	out.CompanyNumber = pick(existing.CompanyNumber, incoming.CompanyNumber)
	out.Representative = pick(existing.Representative, incoming.Representative)
	out.EstablishedDate = pick(existing.EstablishedDate, incoming.EstablishedDate)
	out.EmployeeCount = pick(existing.EmployeeCount, incoming.EmployeeCount)
	out.ProductCategories = pick(existing.ProductCategories, incoming.ProductCategories)
	out.AnnualSales = pick(existing.AnnualSales, incoming.AnnualSales)
	out.Email = pick(existing.Email, incoming.Email)
	out.Notes = pick(existing.Notes, incoming.Notes)
	out.SourceURL = pick(existing.SourceURL, incoming.SourceURL)
	return out
}

func pick[T any](existing, incoming *T) *T {
	if incoming != nil {
		v := *incoming
		return &v
	}
	return existing
}

// Clone returns a deep copy so callers cannot mutate stored pointers.
func (r Record) Clone() Record {
	out := r
	out.Address = clonePtr(r.Address)
	out.PostalCode = clonePtr(r.PostalCode)
	out.PhoneNumber = clonePtr(r.PhoneNumber)
	out.WebsiteURL = clonePtr(r.WebsiteURL)
	out.CompanyNumber = clonePtr(r.CompanyNumber)
	out.Representative = clonePtr(r.Representative)
	out.EstablishedDate = clonePtr(r.EstablishedDate)
	out.EmployeeCount = clonePtr(r.EmployeeCount)
	out.ProductCategories = clonePtr(r.ProductCategories)
	out.AnnualSales = clonePtr(r.AnnualSales)
	out.Email = clonePtr(r.Email)
	out.Notes = clonePtr(r.Notes)
	out.SourceURL = clonePtr(r.SourceURL)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

type recordJSON struct {
	ID                int64   `json:"id"`
	CompanyName       string  `json:"company_name"`
	Address           *string `json:"address"`
	PostalCode        *string `json:"postal_code"`
	PhoneNumber       *string `json:"phone_number"`
	WebsiteURL        *string `json:"website_url"`
	CompanyNumber     *string `json:"company_number"`
	Representative    *string `json:"representative"`
	EstablishedDate   *string `json:"established_date"`
	EmployeeCount     *int64  `json:"employee_count"`
	ProductCategories *string `json:"product_categories"`
	AnnualSales       *int64  `json:"annual_sales"`
	Email             *string `json:"email"`
	Notes             *string `json:"notes"`
	CreatedAt         *string `json:"created_at"`
	UpdatedAt         *string `json:"updated_at"`
	SourceURL         *string `json:"source_url"`
}

// MarshalJSON renders dates as YYYY-MM-DD and timestamps as RFC 3339.
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		ID:                r.ID,
		CompanyName:       r.CompanyName,
		Address:           r.Address,
		PostalCode:        r.PostalCode,
		PhoneNumber:       r.PhoneNumber,
		WebsiteURL:        r.WebsiteURL,
		CompanyNumber:     r.CompanyNumber,
		Representative:    r.Representative,
		EmployeeCount:     r.EmployeeCount,
		ProductCategories: r.ProductCategories,
		AnnualSales:       r.AnnualSales,
		Email:             r.Email,
		Notes:             r.Notes,
		SourceURL:         r.SourceURL,
	}
	if r.EstablishedDate != nil {
		out.EstablishedDate = Ptr(r.EstablishedDate.Format(DateLayout))
	}
	if !r.CreatedAt.IsZero() {
		out.CreatedAt = Ptr(r.CreatedAt.Format(time.RFC3339))
	}
	if !r.UpdatedAt.IsZero() {
		out.UpdatedAt = Ptr(r.UpdatedAt.Format(time.RFC3339))
	}
	return json.Marshal(out)
}

// Columns lists the export column order.
var Columns = []string{
	"id",
	FieldCompanyName,
	FieldAddress,
	FieldPostalCode,
	FieldPhoneNumber,
	FieldWebsiteURL,
	FieldCompanyNumber,
	FieldRepresentative,
	FieldEstablishedDate,
	FieldEmployeeCount,
	FieldProductCategories,
	FieldAnnualSales,
	FieldEmail,
	FieldNotes,
	"created_at",
	"updated_at",
	FieldSourceURL,
}
