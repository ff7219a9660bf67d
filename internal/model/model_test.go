package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortEventsUndatedLast(t *testing.T) {
	events := []Event{
		{EventKey: "c", RawText: "TBA"},
		{EventKey: "b", Date: "2025-12-12", Time: "19:00"},
		{EventKey: "a", Date: "2025-12-12"},
		{EventKey: "d", Date: "2025-11-01"},
	}
	SortEvents(events)

	var keys []string
	for _, e := range events {
		keys = append(keys, e.EventKey)
	}
	require.Equal(t, []string{"d", "a", "b", "c"}, keys)
}

func TestAddSourceKeepsOrder(t *testing.T) {
	e := Event{Sources: []string{"p1"}}
	e.AddSource("p2")
	e.AddSource("p1")
	require.Equal(t, []string{"p1", "p2"}, e.Sources)
}

func TestDisplayFallsBackToSeed(t *testing.T) {
	e := Entity{Seed: Seed{AuxLines: []string{"ACME", "New Single"}}}
	require.Equal(t, "New Single", e.DisplayName())
	require.Equal(t, "ACME", e.DisplayGroup())

	e.Attributes.Name = "Real Name"
	require.Equal(t, "Real Name", e.DisplayName())
}

func TestKeyDiffCommon(t *testing.T) {
	d := KeyDiff{Updated: []string{"z"}, Unchanged: []string{"a", "m"}}
	require.Equal(t, []string{"a", "m", "z"}, d.Common())
}
