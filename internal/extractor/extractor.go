// Package extractor isolates the site specific rules that locate records
// and sections inside a parsed document. The pipeline only talks to the
// Extractor interface.
package extractor

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// RawRecord is one record as found on an index page, before any parsing.
type RawRecord struct {
	DetailURL   string
	RawDateText string
	// AuxLines are the candidate group/title lines that follow the date,
	// in document order.
	AuxLines []string
}

type Section struct {
	Text   string
	Links  []string
	Images []string
}

type Extractor interface {
	// LocateRecords returns every record of an index page, page is used to
	// resolve relative links.
	LocateRecords(doc *goquery.Document, page *url.URL) []RawRecord
	// LocateSections returns the sections of a detail page whose heading
	// matches one of headings, keyed by the requested heading. Links are
	// resolved against doc.Url when it is set.
	LocateSections(doc *goquery.Document, headings []string) map[string]Section
}
