// Package extract turns fetched HTML into raw business records.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/bizdir-crawler/internal/record"
)

// Extractor pulls raw records out of a parsed document. Implementations stamp
// sourceURL on every record they return.
type Extractor interface {
	Extract(doc *goquery.Document, sourceURL string) []record.Raw
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(doc *goquery.Document, sourceURL string) []record.Raw

// Extract implements Extractor.
func (f ExtractorFunc) Extract(doc *goquery.Document, sourceURL string) []record.Raw {
	return f(doc, sourceURL)
}

// Parse builds a goquery document from a page body.
func Parse(body []byte, baseURL string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if u, err := url.Parse(baseURL); err == nil {
		doc.Url = u
	}
	return doc, nil
}

func cellText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// resolve returns href made absolute against base; a bad base leaves href as is.
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// firstLink returns the resolved href of the first anchor under s.
func firstLink(s *goquery.Selection, base string) (string, bool) {
	href, ok := s.Find("a[href]").First().Attr("href")
	if !ok {
		return "", false
	}
	return resolve(base, href), true
}
