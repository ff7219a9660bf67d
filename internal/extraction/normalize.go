package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/extractor"
	"comebackwatch/internal/model"
	"comebackwatch/lib/textutil"
	"comebackwatch/lib/timezone"
)

const monthPattern = `(Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?`

// month, day, optional year
const monthDayPattern = `\b` + monthPattern + `\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`

var (
	mainDateRegex = regexp.MustCompile(`(?i)` + monthDayPattern)
	time12Regex   = regexp.MustCompile(`(?i)\b(\d{1,2})(?::([0-5]\d))?\s*([ap])\.?m\b\.?`)
	time24Regex   = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	zoneRegex     = regexp.MustCompile(`(?i)\b(` + strings.Join(timezone.Abbreviations(), "|") + `)\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// SecondaryPhrase is a known phrase announcing an extra dated event inside
// the same raw text as the main date.
type SecondaryPhrase struct {
	Kind    model.EventKind
	Pattern *regexp.Regexp
}

// SecondaryPhrases are matched before the main date, in order. Their spans
// are masked so they cannot be mistaken for the main date.
var SecondaryPhrases = []SecondaryPhrase{
	{
		Kind:    model.KindPreRelease,
		Pattern: regexp.MustCompile(`(?i)pre-?release\s*[:·-]\s*` + monthDayPattern),
	},
	{
		Kind:    model.KindSubRelease,
		Pattern: regexp.MustCompile(`(?i)(?:album|digital)\s+release\s*[:·-]\s*` + monthDayPattern),
	},
}

// a sub-date further than this from the main date is assumed to belong to
// the neighbouring year.
const yearWrapThreshold = 183 * 24 * time.Hour

// EventKey fingerprints an event by the fields that identify it.
func EventKey(entityKey string, kind model.EventKind, date, rawText, clock, tz string) string {
	dateOrRaw := date
	if date == "" {
		dateOrRaw = "TBD:" + rawText
	}
	digest := sha256.Sum256([]byte(strings.Join([]string{
		entityKey, string(kind), dateOrRaw, clock, tz,
	}, "|")))
	return hex.EncodeToString(digest[:])
}

// Normalizer turns raw records into events.
type Normalizer struct {
	clock chrono.API
}

func NewNormalizer(clock chrono.API) Normalizer {
	return Normalizer{clock: clock}
}

type parsedDate struct {
	date     time.Time
	hasYear  bool
	clock    string
	zoneName string
}

func parseMonthDay(groups []string) (month time.Month, day int, year int, ok bool) {
	if len(groups) < 4 {
		return 0, 0, 0, false
	}
	prefix := strings.ToLower(groups[1])
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	month, ok = monthsByPrefix[prefix]
	if !ok {
		return 0, 0, 0, false
	}
	day, err := strconv.Atoi(groups[2])
	if err != nil || day < 1 || day > 31 {
		return 0, 0, 0, false
	}
	if groups[3] != "" {
		year, err = strconv.Atoi(groups[3])
		if err != nil {
			return 0, 0, 0, false
		}
	}
	return month, day, year, true
}

// validDate builds the date and rejects overflowing days like February 30.
func validDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func parseClock(text string) (string, bool) {
	if groups := time12Regex.FindStringSubmatch(text); groups != nil {
		hour, _ := strconv.Atoi(groups[1])
		minute := 0
		if groups[2] != "" {
			minute, _ = strconv.Atoi(groups[2])
		}
		if hour >= 1 && hour <= 12 {
			pm := strings.EqualFold(groups[3], "p")
			if pm && hour < 12 {
				hour += 12
			}
			if !pm && hour == 12 {
				hour = 0
			}
			return fmt.Sprintf("%02d:%02d", hour, minute), true
		}
	}
	if groups := time24Regex.FindStringSubmatch(text); groups != nil {
		hour, _ := strconv.Atoi(groups[1])
		minute, _ := strconv.Atoi(groups[2])
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}
	return "", false
}

func (n Normalizer) fallbackYear(yearHint int) int {
	if yearHint > 0 {
		return yearHint
	}
	return n.clock.Now().In(timezone.Location).Year()
}

// Normalize turns one raw record into its events. A record always yields
// at least one event, records without any parseable date yield a single
// undated event of kind unknown.
func (n Normalizer) Normalize(record extractor.RawRecord, yearHint int, page string) []model.Event {
	raw := textutil.Squash(record.RawDateText)
	masked := raw

	type secondary struct {
		kind  model.EventKind
		text  string
		month time.Month
		day   int
		year  int
	}
	var secondaries []secondary
	for _, phrase := range SecondaryPhrases {
		for _, loc := range phrase.Pattern.FindAllStringSubmatchIndex(masked, -1) {
			groups := submatches(masked, loc)
			month, day, year, ok := parseMonthDay(groups[len(groups)-4:])
			if !ok {
				continue
			}
			secondaries = append(secondaries, secondary{
				kind:  phrase.Kind,
				text:  groups[0],
				month: month,
				day:   day,
				year:  year,
			})
		}
		masked = phrase.Pattern.ReplaceAllStringFunc(masked, func(s string) string {
			return strings.Repeat(" ", len(s))
		})
	}

	var events []model.Event
	var main *time.Time

	if groups := mainDateRegex.FindStringSubmatch(masked); groups != nil {
		month, day, year, ok := parseMonthDay(groups)
		if ok {
			if year == 0 {
				year = n.fallbackYear(yearHint)
			}
			zoneName := timezone.Name
			if abbr := zoneRegex.FindString(masked); abbr != "" {
				if name, found := timezone.FromAbbreviation(abbr); found {
					zoneName = name
				}
			}
			if date, valid := validDate(year, month, day, timezone.Load(zoneName)); valid {
				main = &date
				clock, hasClock := parseClock(masked)
				precision := model.PrecisionDate
				if hasClock {
					precision = model.PrecisionDateTime
				}
				events = append(events, n.event(record.DetailURL, model.KindPrimaryRelease, date, clock, zoneName, precision, raw, page))
			}
		}
	}

	for _, sec := range secondaries {
		year := sec.year
		if year == 0 {
			if main != nil {
				year = main.Year()
			} else {
				year = n.fallbackYear(yearHint)
			}
		}
		date, valid := validDate(year, sec.month, sec.day, timezone.Location)
		if !valid {
			continue
		}
		if main != nil && sec.year == 0 {
			date = wrapYear(date, *main)
		}
		events = append(events, n.event(record.DetailURL, sec.kind, date, "", timezone.Name, model.PrecisionDate, textutil.Squash(sec.text), page))
	}

	if len(events) == 0 {
		events = append(events, model.Event{
			EventKey:  EventKey(record.DetailURL, model.KindUnknown, "", raw, "", timezone.Name),
			EntityKey: record.DetailURL,
			Kind:      model.KindUnknown,
			TZ:        timezone.Name,
			Precision: model.PrecisionNone,
			RawText:   raw,
			Sources:   []string{page},
		})
	}
	return events
}

func (n Normalizer) event(entityKey string, kind model.EventKind, date time.Time, clock, zoneName string, precision model.Precision, raw, page string) model.Event {
	day := date.Format(time.DateOnly)
	return model.Event{
		EventKey:  EventKey(entityKey, kind, day, raw, clock, zoneName),
		EntityKey: entityKey,
		Kind:      kind,
		Date:      day,
		Time:      clock,
		TZ:        zoneName,
		Precision: precision,
		RawText:   raw,
		Sources:   []string{page},
	}
}

// wrapYear moves a year-less sub-date into the year closest to the main
// date, e.g. a December pre-release of a January release.
func wrapYear(date, main time.Time) time.Time {
	diff := date.Sub(main)
	switch {
	case diff > yearWrapThreshold:
		return date.AddDate(-1, 0, 0)
	case diff < -yearWrapThreshold:
		return date.AddDate(1, 0, 0)
	}
	return date
}

func submatches(s string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		start, end := loc[2*i], loc[2*i+1]
		if start >= 0 {
			out[i] = s[start:end]
		}
	}
	return out
}
