package views

import (
	"testing"
	"time"

	"comebackwatch/internal/model"
	"comebackwatch/lib/timezone"

	"github.com/stretchr/testify/require"
)

func keys(items []model.ViewItem) []string {
	out := []string{}
	for _, i := range items {
		out = append(out, i.EventKey)
	}
	return out
}

func TestBuildBuckets(t *testing.T) {
	// 2025-12-10 09:00 in Seoul
	now := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	opts := Options{HorizonDays: 7, RecentDays: 3}

	events := []model.Event{
		{EventKey: "today", Date: "2025-12-10", TZ: "Asia/Seoul"},
		{EventKey: "horizon-edge", Date: "2025-12-17", TZ: "Asia/Seoul"},
		{EventKey: "past-horizon", Date: "2025-12-18", TZ: "Asia/Seoul"},
		{EventKey: "yesterday", Date: "2025-12-09", TZ: "Asia/Seoul"},
		{EventKey: "recent-edge", Date: "2025-12-07", TZ: "Asia/Seoul"},
		{EventKey: "too-old", Date: "2025-12-06", TZ: "Asia/Seoul"},
		{EventKey: "b-undated", RawText: "TBA"},
		{EventKey: "a-undated", RawText: "TBA"},
		{EventKey: "c-undated", RawText: "Coming soon"},
	}

	views := Build(events, nil, now, opts)
	require.Equal(t, "2025-12-10", views.Today)
	require.Equal(t, []string{"today", "horizon-edge"}, keys(views.Upcoming))
	require.Equal(t, []string{"recent-edge", "yesterday"}, keys(views.Recent))
	require.Equal(t, []string{"c-undated", "a-undated", "b-undated"}, keys(views.Undated))
}

func TestBuildOrdersByDayThenTime(t *testing.T) {
	now := time.Date(2025, 12, 10, 0, 0, 0, 0, timezone.Location)
	events := []model.Event{
		{EventKey: "z", Date: "2025-12-12", Time: "18:00", TZ: "Asia/Seoul"},
		{EventKey: "y", Date: "2025-12-12", TZ: "Asia/Seoul"},
		{EventKey: "x", Date: "2025-12-12", Time: "09:00", TZ: "Asia/Seoul"},
		{EventKey: "w", Date: "2025-12-11", Time: "23:00", TZ: "Asia/Seoul"},
	}
	views := Build(events, nil, now, DefaultOptions())
	require.Equal(t, []string{"w", "y", "x", "z"}, keys(views.Upcoming))
}

func TestBuildConvertsForeignZones(t *testing.T) {
	now := time.Date(2025, 12, 10, 0, 0, 0, 0, timezone.Location)
	events := []model.Event{
		// 20:00 in New York on the 11th is 10:00 on the 12th in Seoul
		{EventKey: "ny", Date: "2025-12-11", Time: "20:00", TZ: "America/New_York"},
	}
	views := Build(events, nil, now, DefaultOptions())
	require.Len(t, views.Upcoming, 1)
	require.Equal(t, "2025-12-12", views.Upcoming[0].Day)
	require.Equal(t, "10:00", views.Upcoming[0].Time)
	require.Equal(t, "Asia/Seoul", views.Upcoming[0].TZ)
}

func TestBuildCarriesEntityNames(t *testing.T) {
	now := time.Date(2025, 12, 10, 0, 0, 0, 0, timezone.Location)
	events := []model.Event{{EventKey: "e", EntityKey: "acme", Date: "2025-12-12", TZ: "Asia/Seoul"}}
	entities := []model.Entity{{EntityKey: "acme", Seed: model.Seed{AuxLines: []string{"ACME", "New Single"}}}}

	views := Build(events, entities, now, DefaultOptions())
	require.Equal(t, "New Single", views.Upcoming[0].Name)
	require.Equal(t, "ACME", views.Upcoming[0].Group)
}

func TestBuildIsPure(t *testing.T) {
	now := time.Date(2025, 12, 10, 0, 0, 0, 0, timezone.Location)
	events := []model.Event{
		{EventKey: "b", Date: "2025-12-12", TZ: "Asia/Seoul"},
		{EventKey: "a", Date: "2025-12-12", TZ: "Asia/Seoul"},
	}
	first := Build(events, nil, now, DefaultOptions())
	second := Build(events, nil, now, DefaultOptions())
	require.Equal(t, first, second)
	require.Equal(t, "b", events[0].EventKey)
}
