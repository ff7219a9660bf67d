package extraction

import (
	"regexp"
	"strconv"

	"comebackwatch/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

var (
	monthYearRegex = regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`)
	bareYearRegex  = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// YearHint guesses the year an index page is about from its heading or
// title, 0 means no guess.
func YearHint(doc *goquery.Document) int {
	candidates := []string{
		textutil.Squash(doc.Find("h1").First().Text()),
		textutil.Squash(doc.Find("title").First().Text()),
	}
	for _, re := range []*regexp.Regexp{monthYearRegex, bareYearRegex} {
		for _, text := range candidates {
			groups := re.FindStringSubmatch(text)
			if groups == nil {
				continue
			}
			year, err := strconv.Atoi(groups[1])
			if err == nil {
				return year
			}
		}
	}
	return 0
}
