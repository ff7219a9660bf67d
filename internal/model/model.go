// Package model holds the documents exchanged between pipeline stages and
// persisted by the state store.
package model

import (
	"sort"
	"time"
)

type EventKind string

const (
	KindPrimaryRelease EventKind = "primary-release"
	KindPreRelease     EventKind = "pre-release"
	KindSubRelease     EventKind = "sub-release"
	KindUnknown        EventKind = "unknown"
)

type Precision string

const (
	PrecisionDateTime Precision = "datetime"
	PrecisionDate     Precision = "date"
	PrecisionNone     Precision = "none"
)

// Event is one dated (or undated) occurrence tied to an entity.
type Event struct {
	EventKey  string    `json:"event_key"`
	EntityKey string    `json:"entity_key"`
	Kind      EventKind `json:"event_kind"`
	// Date is YYYY-MM-DD, empty when the raw text could not be parsed.
	Date      string    `json:"event_date,omitempty"`
	Time      string    `json:"event_time,omitempty"`
	TZ        string    `json:"event_tz,omitempty"`
	Precision Precision `json:"precision"`
	RawText   string    `json:"raw_text"`
	Sources   []string  `json:"sources"`
}

func (e Event) Undated() bool {
	return e.Date == ""
}

// AddSource appends src to the provenance list if it is not there yet.
func (e *Event) AddSource(src string) {
	for _, s := range e.Sources {
		if s == src {
			return
		}
	}
	e.Sources = append(e.Sources, src)
}

type Attributes struct {
	Name           string            `json:"name"`
	Group          string            `json:"group"`
	Classification string            `json:"classification"`
	Release        map[string]string `json:"release"`
	Links          []string          `json:"links"`
	Media          []string          `json:"media"`
}

// Seed is what extraction knows about an entity before it is enriched.
type Seed struct {
	FirstSeenPage string   `json:"first_seen_page"`
	AuxLines      []string `json:"aux_lines"`
}

type Entity struct {
	EntityKey   string     `json:"entity_key"`
	Attributes  Attributes `json:"attributes"`
	ContentHash string     `json:"content_hash,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	Seed        Seed       `json:"seed"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	Absent      bool       `json:"absent"`
}

// DisplayName returns the best known name of the entity.
func (e Entity) DisplayName() string {
	if e.Attributes.Name != "" {
		return e.Attributes.Name
	}
	if len(e.Seed.AuxLines) > 1 {
		return e.Seed.AuxLines[1]
	}
	return ""
}

// DisplayGroup returns the best known group of the entity.
func (e Entity) DisplayGroup() string {
	if e.Attributes.Group != "" {
		return e.Attributes.Group
	}
	if len(e.Seed.AuxLines) > 0 {
		return e.Seed.AuxLines[0]
	}
	return ""
}

type PageSet struct {
	DiscoveredAt time.Time `json:"discovered_at"`
	SourceUsed   string    `json:"source_used"`
	SourcesTried []string  `json:"sources_tried"`
	PagesScanned []string  `json:"pages_scanned"`
	Pages        []string  `json:"pages"`
	Blocked      bool      `json:"blocked"`
	Warnings     []string  `json:"warnings"`
}

type EventSet struct {
	GeneratedAt time.Time `json:"generated_at"`
	PagesUsed   []string  `json:"pages_used"`
	Events      []Event   `json:"events"`
}

type EntitySet struct {
	UpdatedAt time.Time `json:"updated_at"`
	Entities  []Entity  `json:"entities"`
}

type FreshnessRecord struct {
	LastFetchedAt time.Time `json:"last_fetched_at"`
}

type Freshness map[string]FreshnessRecord

type EventSnapshot struct {
	CommitID    string    `json:"commit_id"`
	CommittedAt time.Time `json:"committed_at"`
	Events      []Event   `json:"events"`
}

type EntitySnapshot struct {
	CommitID    string    `json:"commit_id"`
	CommittedAt time.Time `json:"committed_at"`
	Entities    []Entity  `json:"entities"`
}

// SortEvents orders events by date with undated events last, then by key.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Undated() != b.Undated() {
			return !a.Undated()
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.EventKey < b.EventKey
	})
}

func SortEntities(entities []Entity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].EntityKey < entities[j].EntityKey
	})
}

// IndexEntities maps entities by their key.
func IndexEntities(entities []Entity) map[string]Entity {
	out := make(map[string]Entity, len(entities))
	for _, e := range entities {
		out[e.EntityKey] = e
	}
	return out
}
