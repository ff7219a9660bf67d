package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"comebackwatch/lib/htmlutil"
	"comebackwatch/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
)

var monthNameRegex = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\b`)

var bareURLRegex = regexp.MustCompile(`(?i)^https?://`)

// lines containing one of these (after normalization) are counters or
// buttons, never a group or title.
var auxLineBlocklist = []string{"view", "share"}

const headingSelector = "h1, h2, h3, h4, h5, h6"

// Cards extracts records from index pages that render each record as a
// card linking to a detail page.
type Cards struct {
	// DetailPath is matched against the path of every link to decide if it
	// points to a detail page.
	DetailPath *regexp.Regexp
	// MaxAncestors bounds how far up from a link the card container is
	// searched for.
	MaxAncestors int
	MaxAuxLines  int
	// HeadingSimilarity is the minimum Jaro-Winkler similarity between a
	// requested heading and a document heading.
	HeadingSimilarity float64
}

func NewCards() Cards {
	return Cards{
		DetailPath:        regexp.MustCompile(`^/album/.+`),
		MaxAncestors:      8,
		MaxAuxLines:       4,
		HeadingSimilarity: 0.92,
	}
}

func (c Cards) isDetailLink(link *url.URL, page *url.URL) bool {
	if page != nil && !strings.EqualFold(link.Hostname(), page.Hostname()) {
		return false
	}
	return c.DetailPath.MatchString(link.Path)
}

func (c Cards) LocateRecords(doc *goquery.Document, page *url.URL) []RawRecord {
	var records []RawRecord
	seen := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		resolved := htmlutil.ResolveURL(page, href)
		if resolved == "" || seen[resolved] {
			return
		}
		link, err := url.Parse(resolved)
		if err != nil || !c.isDetailLink(link, page) {
			return
		}
		seen[resolved] = true

		card := c.findCardContainer(a)
		lines := htmlutil.SelectionLines(card)
		dateText, aux := c.splitCardLines(lines)

		records = append(records, RawRecord{
			DetailURL:   resolved,
			RawDateText: dateText,
			AuxLines:    aux,
		})
	})

	return records
}

// findCardContainer walks up from the link until it reaches an element
// that looks like a whole card: it mentions a month and has a few lines.
func (c Cards) findCardContainer(a *goquery.Selection) *goquery.Selection {
	cur := a
	for i := 0; i < c.MaxAncestors; i++ {
		parent := cur.Parent()
		if parent.Length() == 0 {
			break
		}
		lines := htmlutil.SelectionLines(parent)
		if len(lines) >= 3 && containsMonth(lines) {
			return parent
		}
		cur = parent
	}

	closest := a.Closest("article, li, div")
	if closest.Length() > 0 {
		return closest
	}
	return a.Parent()
}

func containsMonth(lines []string) bool {
	for _, l := range lines {
		if monthNameRegex.MatchString(l) {
			return true
		}
	}
	return false
}

func (c Cards) splitCardLines(lines []string) (dateText string, aux []string) {
	dateIdx := 0
	for i, l := range lines {
		if monthNameRegex.MatchString(l) {
			dateIdx = i
			break
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	dateText = lines[dateIdx]

	for _, l := range lines[dateIdx+1:] {
		if len(aux) >= c.MaxAuxLines {
			break
		}
		if bareURLRegex.MatchString(l) || textutil.MatchName(l, auxLineBlocklist) {
			continue
		}
		aux = append(aux, l)
	}
	return dateText, aux
}

func (c Cards) matchHeading(text string, headings []string) (string, bool) {
	normalized := textutil.NormalizeName(text)
	if normalized == "" {
		return "", false
	}
	best := ""
	bestScore := 0.0
	for _, h := range headings {
		target := textutil.NormalizeName(h)
		if target == normalized {
			return h, true
		}
		score := matchr.JaroWinkler(normalized, target, false)
		if score > bestScore {
			best = h
			bestScore = score
		}
	}
	return best, bestScore >= c.HeadingSimilarity
}

func (c Cards) LocateSections(doc *goquery.Document, headings []string) map[string]Section {
	out := map[string]Section{}

	doc.Find(headingSelector).Each(func(_ int, heading *goquery.Selection) {
		label, ok := c.matchHeading(textutil.Squash(heading.Text()), headings)
		if !ok {
			return
		}
		if _, exists := out[label]; exists {
			return
		}

		body := heading.NextUntil(headingSelector)
		out[label] = Section{
			Text:   strings.Join(htmlutil.SelectionLines(body), "\n"),
			Links:  sectionLinks(body, doc.Url),
			Images: sectionImages(body, doc.Url),
		}
	})

	return out
}

func sectionLinks(body *goquery.Selection, base *url.URL) []string {
	var out []string
	body.Find("a[href]").AddSelection(body.Filter("a[href]")).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if link := htmlutil.ResolveURL(base, href); link != "" {
			out = append(out, link)
		}
	})
	return out
}

func sectionImages(body *goquery.Selection, base *url.URL) []string {
	var out []string
	body.Find("img").AddSelection(body.Filter("img")).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("data-src")
		if !ok || src == "" {
			src, _ = img.Attr("src")
		}
		if link := htmlutil.ResolveURL(base, src); link != "" {
			out = append(out, link)
		}
	})
	return out
}
