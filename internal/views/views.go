// Package views partitions events into the slices consumers look at:
// upcoming, recently past and undated.
package views

import (
	"sort"
	"time"

	"comebackwatch/internal/model"
	"comebackwatch/lib/timezone"
)

type Options struct {
	HorizonDays int `json:"horizon_days"`
	RecentDays  int `json:"recent_days"`
}

func DefaultOptions() Options {
	return Options{HorizonDays: 45, RecentDays: 14}
}

type bucketed struct {
	item model.ViewItem
	day  time.Time
}

// localDay returns the calendar day and time of the event in the reference
// zone. Events with a time in another zone may land on a different day.
func localDay(e model.Event) (time.Time, string, bool) {
	loc := timezone.Load(e.TZ)
	if e.Time != "" {
		t, err := time.ParseInLocation("2006-01-02 15:04", e.Date+" "+e.Time, loc)
		if err == nil {
			local := t.In(timezone.Location)
			return timezone.StartOfDay(local), local.Format("15:04"), true
		}
	}
	d, err := time.ParseInLocation(time.DateOnly, e.Date, timezone.Location)
	if err != nil {
		return time.Time{}, "", false
	}
	return d, e.Time, true
}

// Build is a pure function of its inputs.
func Build(events []model.Event, entities []model.Entity, now time.Time, opts Options) model.Views {
	byKey := model.IndexEntities(entities)
	today := timezone.StartOfDay(now.In(timezone.Location))
	horizon := today.AddDate(0, 0, opts.HorizonDays)
	recentStart := today.AddDate(0, 0, -opts.RecentDays)

	views := model.Views{
		GeneratedAt: now,
		Today:       today.Format(time.DateOnly),
		HorizonDays: opts.HorizonDays,
		RecentDays:  opts.RecentDays,
		Upcoming:    []model.ViewItem{},
		Recent:      []model.ViewItem{},
		Undated:     []model.ViewItem{},
	}

	var upcoming, recent []bucketed
	for _, e := range events {
		entity := byKey[e.EntityKey]
		item := model.ViewItem{
			EventKey:  e.EventKey,
			EntityKey: e.EntityKey,
			Kind:      e.Kind,
			TZ:        e.TZ,
			RawText:   e.RawText,
			Name:      entity.DisplayName(),
			Group:     entity.DisplayGroup(),
		}

		if e.Undated() {
			views.Undated = append(views.Undated, item)
			continue
		}
		day, clock, ok := localDay(e)
		if !ok {
			views.Undated = append(views.Undated, item)
			continue
		}
		item.Day = day.Format(time.DateOnly)
		item.Time = clock
		if clock != "" {
			item.TZ = timezone.Name
		}

		switch {
		case !day.Before(today) && !day.After(horizon):
			upcoming = append(upcoming, bucketed{item: item, day: day})
		case !day.Before(recentStart) && day.Before(today):
			recent = append(recent, bucketed{item: item, day: day})
		}
	}

	views.Upcoming = sortBucketed(upcoming)
	views.Recent = sortBucketed(recent)
	sort.Slice(views.Undated, func(i, j int) bool {
		a, b := views.Undated[i], views.Undated[j]
		if a.RawText != b.RawText {
			return a.RawText < b.RawText
		}
		return a.EventKey < b.EventKey
	})
	return views
}

func sortBucketed(items []bucketed) []model.ViewItem {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.day.Equal(b.day) {
			return a.day.Before(b.day)
		}
		if a.item.Time != b.item.Time {
			// date-only events sort before timed ones on the same day
			return a.item.Time < b.item.Time
		}
		return a.item.EventKey < b.item.EventKey
	})
	out := make([]model.ViewItem, len(items))
	for i, b := range items {
		out[i] = b.item
	}
	return out
}
