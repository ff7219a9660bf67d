package model

import (
	"sort"
	"time"
)

type ViewItem struct {
	EventKey  string    `json:"event_key"`
	EntityKey string    `json:"entity_key"`
	Kind      EventKind `json:"event_kind"`
	Day       string    `json:"day,omitempty"`
	Time      string    `json:"time,omitempty"`
	TZ        string    `json:"event_tz,omitempty"`
	RawText   string    `json:"raw_text"`
	Name      string    `json:"name,omitempty"`
	Group     string    `json:"group,omitempty"`
}

type Views struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Today       string     `json:"today"`
	HorizonDays int        `json:"horizon_days"`
	RecentDays  int        `json:"recent_days"`
	Upcoming    []ViewItem `json:"upcoming"`
	Recent      []ViewItem `json:"recent"`
	Undated     []ViewItem `json:"undated"`
}

// KeyDiff classifies keys of one document kind between two snapshots.
type KeyDiff struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
}

// Common returns updated ∪ unchanged, sorted.
func (d KeyDiff) Common() []string {
	out := make([]string, 0, len(d.Updated)+len(d.Unchanged))
	out = append(out, d.Updated...)
	out = append(out, d.Unchanged...)
	sort.Strings(out)
	return out
}

type EventChange struct {
	EventKey string `json:"event_key"`
	Before   *Event `json:"before,omitempty"`
	After    *Event `json:"after,omitempty"`
}

type Delta struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	PreviousCommit string        `json:"previous_commit"`
	Commit         string        `json:"commit"`
	Events         KeyDiff       `json:"events"`
	Entities       KeyDiff       `json:"entities"`
	EventChanges   []EventChange `json:"event_changes"`
}

// Empty reports whether nothing was added, removed or updated.
func (d Delta) Empty() bool {
	return len(d.Events.Added)+len(d.Events.Removed)+len(d.Events.Updated)+
		len(d.Entities.Added)+len(d.Entities.Removed)+len(d.Entities.Updated) == 0
}

type DeltaCounts struct {
	EventsAdded     int `json:"events_added"`
	EventsRemoved   int `json:"events_removed"`
	EventsUpdated   int `json:"events_updated"`
	EntitiesAdded   int `json:"entities_added"`
	EntitiesRemoved int `json:"entities_removed"`
	EntitiesUpdated int `json:"entities_updated"`
}

func (d Delta) Counts() DeltaCounts {
	return DeltaCounts{
		EventsAdded:     len(d.Events.Added),
		EventsRemoved:   len(d.Events.Removed),
		EventsUpdated:   len(d.Events.Updated),
		EntitiesAdded:   len(d.Entities.Added),
		EntitiesRemoved: len(d.Entities.Removed),
		EntitiesUpdated: len(d.Entities.Updated),
	}
}

// Summary is written at the end of every stage and printed by the cli.
type Summary struct {
	RunID          string       `json:"run_id"`
	Stage          string       `json:"stage"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     time.Time    `json:"finished_at"`
	Discovered     int          `json:"discovered"`
	SourceUsed     string       `json:"source_used,omitempty"`
	Extracted      int          `json:"extracted"`
	Entities       int          `json:"entities"`
	EnrichedOK     int          `json:"enriched_ok"`
	EnrichedFailed int          `json:"enriched_failed"`
	SkippedFresh   int          `json:"skipped_fresh"`
	Blocked        bool         `json:"blocked"`
	Upcoming       int          `json:"upcoming"`
	Recent         int          `json:"recent"`
	Undated        int          `json:"undated"`
	Delta          *DeltaCounts `json:"delta,omitempty"`
	Warnings       []string     `json:"warnings"`
}
