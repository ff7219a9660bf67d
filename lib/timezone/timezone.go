package timezone

import (
	"strings"
	"time"
)

// Name is the canonical zone of the source, every date without an explicit
// zone is interpreted in it.
const Name = "Asia/Seoul"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation(Name)
	if err != nil {
		panic(err)
	}
}

// force timezone to be in KST because the machine running the harvester is
// usually somewhere else, which will cause disturbances when manipulating
// dates based on <time.Time>.Year()/Month()/Day()/Hour()/...
func Now() time.Time {
	return time.Now().In(Location)
}

var abbreviations = map[string]string{
	"KST": "Asia/Seoul",
	"JST": "Asia/Tokyo",
	"UTC": "UTC",
	"GMT": "UTC",
	"EST": "America/New_York",
	"EDT": "America/New_York",
	"PST": "America/Los_Angeles",
	"PDT": "America/Los_Angeles",
	"CET": "Europe/Paris",
}

// Abbreviations returns the zone abbreviations FromAbbreviation understands.
func Abbreviations() []string {
	out := make([]string, 0, len(abbreviations))
	for k := range abbreviations {
		out = append(out, k)
	}
	return out
}

// FromAbbreviation resolves a zone abbreviation found in free text to an
// IANA zone name.
func FromAbbreviation(abbr string) (string, bool) {
	name, ok := abbreviations[strings.ToUpper(strings.TrimSpace(abbr))]
	return name, ok
}

// Load is time.LoadLocation that falls back to the canonical zone.
func Load(name string) *time.Location {
	if name == "" || name == Name {
		return Location
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Location
	}
	return loc
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
