package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/bizdir-crawler/internal/record"
)

// profileLabels maps lower-cased definition-list labels to record fields.
var profileLabels = map[string]string{
	"company name":     record.FieldCompanyName,
	"company":          record.FieldCompanyName,
	"name":             record.FieldCompanyName,
	"会社名":              record.FieldCompanyName,
	"企業名":              record.FieldCompanyName,
	"社名":               record.FieldCompanyName,
	"商号":               record.FieldCompanyName,
	"address":          record.FieldAddress,
	"所在地":              record.FieldAddress,
	"住所":               record.FieldAddress,
	"本社所在地":            record.FieldAddress,
	"postal code":      record.FieldPostalCode,
	"zip":              record.FieldPostalCode,
	"郵便番号":             record.FieldPostalCode,
	"phone":            record.FieldPhoneNumber,
	"tel":              record.FieldPhoneNumber,
	"telephone":        record.FieldPhoneNumber,
	"電話番号":             record.FieldPhoneNumber,
	"電話":               record.FieldPhoneNumber,
	"website":          record.FieldWebsiteURL,
	"url":              record.FieldWebsiteURL,
	"homepage":         record.FieldWebsiteURL,
	"ホームページ":           record.FieldWebsiteURL,
	"ウェブサイト":           record.FieldWebsiteURL,
	"corporate number": record.FieldCompanyNumber,
	"company number":   record.FieldCompanyNumber,
	"法人番号":             record.FieldCompanyNumber,
	"representative":   record.FieldRepresentative,
	"ceo":              record.FieldRepresentative,
	"代表者":              record.FieldRepresentative,
	"代表者名":             record.FieldRepresentative,
	"代表":               record.FieldRepresentative,
	"established":      record.FieldEstablishedDate,
	"founded":          record.FieldEstablishedDate,
	"設立":               record.FieldEstablishedDate,
	"設立日":              record.FieldEstablishedDate,
	"設立年月日":            record.FieldEstablishedDate,
	"employees":        record.FieldEmployeeCount,
	"従業員数":             record.FieldEmployeeCount,
	"社員数":              record.FieldEmployeeCount,
	"products":         record.FieldProductCategories,
	"business":         record.FieldProductCategories,
	"事業内容":             record.FieldProductCategories,
	"取扱商品":             record.FieldProductCategories,
	"annual sales":     record.FieldAnnualSales,
	"revenue":          record.FieldAnnualSales,
	"売上高":              record.FieldAnnualSales,
	"年商":               record.FieldAnnualSales,
	"email":            record.FieldEmail,
	"e-mail":           record.FieldEmail,
	"メール":              record.FieldEmail,
	"メールアドレス":          record.FieldEmail,
	"notes":            record.FieldNotes,
	"remarks":          record.FieldNotes,
	"備考":               record.FieldNotes,
}

// DefinitionListExtractor reads company profile pages where each <dl> holds
// one company as label/value pairs.
type DefinitionListExtractor struct{}

// Extract implements Extractor.
func (DefinitionListExtractor) Extract(doc *goquery.Document, sourceURL string) []record.Raw {
	var out []record.Raw
	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		raw := record.Raw{}
		dl.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			field, ok := profileLabels[labelKey(dt.Text())]
			if !ok {
				return
			}
			if _, seen := raw[field]; seen {
				return
			}
			dd := dt.NextFiltered("dd")
			if dd.Length() == 0 {
				return
			}
			if field == record.FieldWebsiteURL {
				if link, ok := firstLink(dd, sourceURL); ok {
					raw[field] = link
					return
				}
			}
			raw[field] = cellText(dd)
		})
		if name, _ := raw.String(record.FieldCompanyName); name == "" {
			return
		}
		raw[record.FieldSourceURL] = sourceURL
		out = append(out, raw)
	})
	return out
}

func labelKey(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimRight(label, ":：")
	return strings.ToLower(strings.TrimSpace(label))
}
