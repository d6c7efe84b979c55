package normalize

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomDigits(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + r.Intn(10))
	}
	return string(b)
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"  Example  Co \n", "Example Co", true},
		{"line1\r\nline2\tend", "line1 line2 end", true},
		{"株式会社　サンプル", "株式会社 サンプル", true},
		{"", "", false},
		{" \n\t ", "", false},
	}
	for _, tc := range testCases {
		got, ok := CleanText(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
	}
}

func TestPostalCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "123-4567", PostalCode("1234567"))
	assert.Equal(t, "123-4567", PostalCode("〒123-4567"))
	assert.Equal(t, "123-4567", PostalCode("１２３－４５６７"))
	assert.Equal(t, "012-3456", PostalCode("123456"))
	assert.Equal(t, "12345", PostalCode("12345"))
	assert.Equal(t, "unknown", PostalCode("unknown"))
	assert.Equal(t, "", PostalCode(""))
}

func TestPostalCodeProperties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		d7 := randomDigits(r, 7)
		require.Equal(t, d7[:3]+"-"+d7[3:], PostalCode(d7))
		d6 := randomDigits(r, 6)
		require.Equal(t, "0"+d6[:2]+"-"+d6[2:], PostalCode(d6))
	}
}

func TestPhoneNumber(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{"09012345678", "090-1234-5678"},
		{"0312345678", "03-1234-5678"},
		{"03-1234-5678", "03-1234-5678"},
		{"TEL: 03-1234-5678", "03-1234-5678"},
		{"(03) 1234 5678", "03-1234-5678"},
		{"０９０－１２３４－５６７８", "090-1234-5678"},
		{"12345", "12345"},
		{"1-2-3", "1-2-3"},
		{"", ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, PhoneNumber(tc.in), "input %q", tc.in)
	}
}

func TestPhoneNumberProperties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		d10 := randomDigits(r, 10)
		require.Equal(t, fmt.Sprintf("%s-%s-%s", d10[0:2], d10[2:6], d10[6:10]), PhoneNumber(d10))
		d11 := randomDigits(r, 11)
		require.Equal(t, fmt.Sprintf("%s-%s-%s", d11[0:3], d11[3:7], d11[7:11]), PhoneNumber(d11))
	}
}

func TestURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.com", URL("example.com"))
	assert.Equal(t, "https://example.com", URL("  https://example.com "))
	assert.Equal(t, "http://example.com/a", URL("http://example.com/a"))
	assert.Equal(t, "", URL("   "))

	for _, in := range []string{"example.com", "http://x", "https://y/", " z ", "ftp://host", "//cdn"} {
		once := URL(in)
		assert.Equal(t, once, URL(once), "URL must be idempotent for %q", in)
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidEmail("info@example.co.jp"))
	assert.True(t, ValidEmail("first.last+tag@sub.example.com"))
	assert.False(t, ValidEmail("bad@"))
	assert.False(t, ValidEmail("no-at.example.com"))
	assert.False(t, ValidEmail("a@b.c"))
	assert.False(t, ValidEmail(""))
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	want := time.Date(2001, 4, 9, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2001-04-09", "2001/04/09", "2001年04月09日", "2001年4月9日", "2001.04.09", " 2001/4/9 "} {
		got, err := ParseDate(in)
		require.NoError(t, err, "input %q", in)
		assert.True(t, want.Equal(got), "input %q got %v", in, got)
	}

	for _, in := range []string{"", "April 2001", "2001-13-01", "09/04/2001"} {
		_, err := ParseDate(in)
		assert.ErrorIs(t, err, ErrUnparseableDate, "input %q", in)
	}
}

func TestExtractNumber(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"about 1,200 staff", 1200, true},
		{"1,234,567円", 1234567, true},
		{"12 to 34", 1234, true},
		{"０", 0, true},
		{"none", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range testCases {
		got, ok := ExtractNumber(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
