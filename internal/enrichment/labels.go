package enrichment

import (
	"regexp"
	"sort"
	"strings"

	"comebackwatch/internal/model"
	"comebackwatch/lib/textutil"
)

type Field int

const (
	FieldName Field = iota
	FieldGroup
	FieldClassification
	// FieldRelease stores the value under Label.Key in the release map.
	FieldRelease
)

type Label struct {
	Text  string
	Field Field
	Key   string
}

// AlbumLabels is the label sequence of a detail page. A value runs from its
// label to the nearest following occurrence of any label in this table.
var AlbumLabels = []Label{
	{Text: "Artist", Field: FieldGroup},
	{Text: "Album", Field: FieldName},
	{Text: "Type", Field: FieldClassification},
	{Text: "Album Type", Field: FieldClassification},
	{Text: "Release Date", Field: FieldRelease, Key: "release_date"},
	{Text: "Release Time", Field: FieldRelease, Key: "release_time"},
	{Text: "Genre", Field: FieldRelease, Key: "genre"},
	{Text: "Label", Field: FieldRelease, Key: "label"},
}

func labelRegex(text string) *regexp.Regexp {
	words := strings.Fields(regexp.QuoteMeta(text))
	return regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\s*:`)
}

type compiledLabel struct {
	Label
	re *regexp.Regexp
}

func compileLabels(labels []Label) []compiledLabel {
	out := make([]compiledLabel, len(labels))
	for i, l := range labels {
		out[i] = compiledLabel{Label: l, re: labelRegex(l.Text)}
	}
	return out
}

var albumLabels = compileLabels(AlbumLabels)

const valueTrim = " \t\n|·-–,;"

// WindowLabels extracts the value of every label found in text. When a
// label repeats only its first occurrence is used, the later occurrences
// still end the window of whatever label precedes them. A match inside a
// longer label match ("Type:" in "Album Type:") is not a label.
func WindowLabels(text string, labels []compiledLabel) map[string]string {
	type match struct {
		label      string
		start, end int
	}
	var matches []match
	for _, l := range labels {
		for _, loc := range l.re.FindAllStringIndex(text, -1) {
			matches = append(matches, match{label: l.Text, start: loc[0], end: loc[1]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].start != matches[j].start {
			return matches[i].start < matches[j].start
		}
		return matches[i].end > matches[j].end
	})

	// matches are ordered by start, longest first, so a nested match always
	// follows the match containing it
	kept := matches[:0]
	for _, m := range matches {
		if len(kept) > 0 && m.end <= kept[len(kept)-1].end {
			continue
		}
		kept = append(kept, m)
	}

	out := map[string]string{}
	seen := map[string]bool{}
	for i, m := range kept {
		if seen[m.label] {
			continue
		}
		seen[m.label] = true
		end := len(text)
		if i+1 < len(kept) {
			end = kept[i+1].start
		}
		value := strings.Trim(textutil.Squash(text[m.end:end]), valueTrim)
		if value != "" {
			out[m.label] = value
		}
	}
	return out
}

// applyLabels fills attributes from the windowed label values.
func applyLabels(values map[string]string, labels []compiledLabel, attrs *model.Attributes) {
	for _, l := range labels {
		value, ok := values[l.Text]
		if !ok {
			continue
		}
		switch l.Field {
		case FieldName:
			attrs.Name = value
		case FieldGroup:
			attrs.Group = value
		case FieldClassification:
			attrs.Classification = value
		case FieldRelease:
			attrs.Release[l.Key] = value
		}
	}
}
