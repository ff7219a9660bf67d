package extraction

import (
	"testing"
	"time"

	"comebackwatch/internal/components/chrono"
	"comebackwatch/internal/extractor"
	"comebackwatch/internal/model"

	"github.com/stretchr/testify/require"
)

const (
	detailURL = "https://kpop.example/album/acme-new-single/"
	indexURL  = "https://kpop.example/december-2025-kpop-comeback-schedule/"
)

type expectedEvent struct {
	kind      model.EventKind
	date      string
	clock     string
	tz        string
	precision model.Precision
}

func summarize(events []model.Event) []expectedEvent {
	var out []expectedEvent
	for _, e := range events {
		out = append(out, expectedEvent{
			kind:      e.Kind,
			date:      e.Date,
			clock:     e.Time,
			tz:        e.TZ,
			precision: e.Precision,
		})
	}
	return out
}

func TestNormalize(t *testing.T) {
	clock := chrono.NewFixedImpl(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	normalizer := NewNormalizer(clock)

	testCases := []struct {
		name     string
		raw      string
		yearHint int
		expected []expectedEvent
	}{
		{
			name:     "date time and zone",
			raw:      "December 12, 2025 7PM KST",
			yearHint: 2025,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2025-12-12", "19:00", "Asia/Seoul", model.PrecisionDateTime},
			},
		},
		{
			name:     "year from hint",
			raw:      "December 3",
			yearHint: 2024,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2024-12-03", "", "Asia/Seoul", model.PrecisionDate},
			},
		},
		{
			name: "year from clock",
			raw:  "Jan. 9th",
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2026-01-09", "", "Asia/Seoul", model.PrecisionDate},
			},
		},
		{
			name:     "minutes and lowercase",
			raw:      "March 14 7:30 pm",
			yearHint: 2026,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2026-03-14", "19:30", "Asia/Seoul", model.PrecisionDateTime},
			},
		},
		{
			name:     "24 hour clock with foreign zone",
			raw:      "April 2, 2026 18:00 JST",
			yearHint: 2026,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2026-04-02", "18:00", "Asia/Tokyo", model.PrecisionDateTime},
			},
		},
		{
			name:     "lowercase zone abbreviation",
			raw:      "December 12, 2025 7pm jst",
			yearHint: 2025,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2025-12-12", "19:00", "Asia/Tokyo", model.PrecisionDateTime},
			},
		},
		{
			name:     "mixed case zone abbreviation",
			raw:      "December 12, 2025 7PM Jst",
			yearHint: 2025,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2025-12-12", "19:00", "Asia/Tokyo", model.PrecisionDateTime},
			},
		},
		{
			name:     "midnight",
			raw:      "May 1 12AM",
			yearHint: 2026,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2026-05-01", "00:00", "Asia/Seoul", model.PrecisionDateTime},
			},
		},
		{
			name:     "pre-release is not the main date",
			raw:      "Pre-release: Nov 28 · December 12, 2025 6PM KST",
			yearHint: 2025,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2025-12-12", "18:00", "Asia/Seoul", model.PrecisionDateTime},
				{model.KindPreRelease, "2025-11-28", "", "Asia/Seoul", model.PrecisionDate},
			},
		},
		{
			name:     "sub-date wraps into previous year",
			raw:      "January 8, 2026 | Pre-release: Dec 20 | Album Release: Jan 15",
			yearHint: 2026,
			expected: []expectedEvent{
				{model.KindPrimaryRelease, "2026-01-08", "", "Asia/Seoul", model.PrecisionDate},
				{model.KindPreRelease, "2025-12-20", "", "Asia/Seoul", model.PrecisionDate},
				{model.KindSubRelease, "2026-01-15", "", "Asia/Seoul", model.PrecisionDate},
			},
		},
		{
			name:     "no date",
			raw:      "Coming soon (TBA)",
			yearHint: 2025,
			expected: []expectedEvent{
				{model.KindUnknown, "", "", "Asia/Seoul", model.PrecisionNone},
			},
		},
		{
			name:     "impossible day degrades to undated",
			raw:      "February 30",
			yearHint: 2026,
			expected: []expectedEvent{
				{model.KindUnknown, "", "", "Asia/Seoul", model.PrecisionNone},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			events := normalizer.Normalize(extractor.RawRecord{
				DetailURL:   detailURL,
				RawDateText: tc.raw,
			}, tc.yearHint, indexURL)

			require.Equal(t, tc.expected, summarize(events))
			for _, e := range events {
				require.Equal(t, detailURL, e.EntityKey)
				require.Equal(t, []string{indexURL}, e.Sources)
				require.NotEmpty(t, e.EventKey)
			}
		})
	}
}

func TestNormalizeKeepsRawTextWhenUndated(t *testing.T) {
	normalizer := NewNormalizer(chrono.NewStandardImpl())
	events := normalizer.Normalize(extractor.RawRecord{
		DetailURL:   detailURL,
		RawDateText: "  to be   announced ",
	}, 0, indexURL)

	require.Len(t, events, 1)
	require.True(t, events[0].Undated())
	require.Equal(t, "to be announced", events[0].RawText)
}

func TestEventKeyDeterminism(t *testing.T) {
	a := EventKey(detailURL, model.KindPrimaryRelease, "2025-12-12", "December 12, 2025 7PM KST", "19:00", "Asia/Seoul")
	b := EventKey(detailURL, model.KindPrimaryRelease, "2025-12-12", "Dec 12 7PM", "19:00", "Asia/Seoul")
	require.Equal(t, a, b, "raw text does not matter once the event is dated")

	c := EventKey(detailURL, model.KindPrimaryRelease, "2025-12-12", "", "20:00", "Asia/Seoul")
	require.NotEqual(t, a, c)

	undatedA := EventKey(detailURL, model.KindUnknown, "", "TBA", "", "Asia/Seoul")
	undatedB := EventKey(detailURL, model.KindUnknown, "", "Coming soon", "", "Asia/Seoul")
	require.NotEqual(t, undatedA, undatedB)

	normalizer := NewNormalizer(chrono.NewStandardImpl())
	record := extractor.RawRecord{DetailURL: detailURL, RawDateText: "December 12, 2025 7PM KST"}
	first := normalizer.Normalize(record, 2025, indexURL)
	second := normalizer.Normalize(record, 2025, "https://kpop.example/other-page/")
	require.Equal(t, first[0].EventKey, second[0].EventKey)
	require.Equal(t, a, first[0].EventKey)
}
