package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/bizdir-crawler/internal/record"
)

// TableExtractor is the generic strategy: every table row after the first is
// read positionally as name, address and phone.
type TableExtractor struct{}

// Extract implements Extractor.
func (TableExtractor) Extract(doc *goquery.Document, sourceURL string) []record.Raw {
	var out []record.Raw
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				return
			}
			cells := row.Find("td, th")
			if cells.Length() < 2 {
				return
			}
			name := cellText(cells.Eq(0))
			if name == "" {
				return
			}
			raw := record.Raw{
				record.FieldCompanyName: name,
				record.FieldAddress:     cellText(cells.Eq(1)),
				record.FieldSourceURL:   sourceURL,
			}
			if cells.Length() > 2 {
				raw[record.FieldPhoneNumber] = cellText(cells.Eq(2))
			}
			if link, ok := firstLink(row, sourceURL); ok {
				raw[record.FieldWebsiteURL] = link
			}
			out = append(out, raw)
		})
	})
	return out
}
