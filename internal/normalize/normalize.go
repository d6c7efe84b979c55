// Package normalize turns loosely formatted directory fields into canonical
// strings, dates and integers. Every function is pure.
package normalize

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// ErrUnparseableDate is returned when no supported layout matches.
var ErrUnparseableDate = errors.New("unparseable date")

var (
	nonPhoneChars   = regexp.MustCompile(`[^0-9-]`)
	nonDigits       = regexp.MustCompile(`[^0-9]`)
	digitRuns       = regexp.MustCompile(`[0-9]+`)
	hyphenatedPhone = regexp.MustCompile(`^\d{2,4}-\d{1,4}-\d{4}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// dateLayouts are tried in order; the first match wins.
var dateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2006年1月2日",
	"2006.1.2",
}

// narrow folds full-width digits and punctuation (common in Japanese listings)
// into their ASCII forms.
func narrow(s string) string {
	return width.Narrow.String(s)
}

// CleanText trims s and collapses every run of whitespace, including
// newlines, into one space. It reports false when nothing is left.
func CleanText(s string) (string, bool) {
	out := strings.Join(strings.Fields(s), " ")
	return out, out != ""
}

// PostalCode reshapes a postal code into NNN-NNNN. Seven digits are split
// 3/4, six digits get a leading zero. Any other digit count returns the input
// unchanged.
func PostalCode(s string) string {
	if s == "" {
		return ""
	}
	digits := nonDigits.ReplaceAllString(narrow(s), "")
	switch len(digits) {
	case 7:
		return digits[:3] + "-" + digits[3:]
	case 6:
		return "0" + digits[:2] + "-" + digits[2:]
	default:
		return s
	}
}

// PhoneNumber hyphenates a phone number. Characters other than digits and
// hyphens are stripped first; an already hyphenated number is kept, otherwise
// ten digits split 2-4-4 and eleven digits split 3-4-4. Other lengths return
// the stripped string.
func PhoneNumber(s string) string {
	if s == "" {
		return ""
	}
	phone := nonPhoneChars.ReplaceAllString(narrow(s), "")
	if hyphenatedPhone.MatchString(phone) {
		return phone
	}
	digits := nonDigits.ReplaceAllString(phone, "")
	switch len(digits) {
	case 10:
		return digits[:2] + "-" + digits[2:6] + "-" + digits[6:]
	case 11:
		return digits[:3] + "-" + digits[3:7] + "-" + digits[7:]
	default:
		return phone
	}
}

// URL trims s and prefixes https:// when no http(s) scheme is present.
func URL(s string) string {
	u := strings.TrimSpace(s)
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}

// ValidEmail reports whether s looks like local@domain.tld.
func ValidEmail(s string) bool {
	if s == "" {
		return false
	}
	return emailPattern.MatchString(s)
}

// ParseDate parses YYYY-MM-DD, YYYY/MM/DD, YYYY年MM月DD日 and YYYY.MM.DD,
// returning midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	value := strings.TrimSpace(narrow(s))
	if value == "" {
		return time.Time{}, ErrUnparseableDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseableDate
}

// ExtractNumber drops thousands separators, concatenates every digit run and
// parses the result. It reports false when s holds no digits or the number
// overflows int64.
func ExtractNumber(s string) (int64, bool) {
	cleaned := strings.ReplaceAll(narrow(s), ",", "")
	runs := digitRuns.FindAllString(cleaned, -1)
	if len(runs) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.Join(runs, ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
