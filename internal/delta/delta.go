// Package delta compares the current event and entity sets with the last
// committed snapshot and commits the current sets as the new snapshot.
package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"comebackwatch/internal/model"
)

// EventHash is the content hash of an event. Provenance is excluded, an
// event seen on one more index page is not an update.
func EventHash(e model.Event) string {
	e.Sources = nil
	body, err := json.Marshal(e)
	if err != nil {
		// model.Event only holds strings
		panic(err)
	}
	digest := sha256.Sum256(body)
	return hex.EncodeToString(digest[:])
}

// diff classifies keys given key → content hash for both sides.
func diff(previous, current map[string]string) model.KeyDiff {
	out := model.KeyDiff{
		Added:     []string{},
		Removed:   []string{},
		Updated:   []string{},
		Unchanged: []string{},
	}
	for key, hash := range current {
		prevHash, ok := previous[key]
		switch {
		case !ok:
			out.Added = append(out.Added, key)
		case prevHash != hash:
			out.Updated = append(out.Updated, key)
		default:
			out.Unchanged = append(out.Unchanged, key)
		}
	}
	for key := range previous {
		if _, ok := current[key]; !ok {
			out.Removed = append(out.Removed, key)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Strings(out.Updated)
	sort.Strings(out.Unchanged)
	return out
}

func eventHashes(events []model.Event) (map[string]string, map[string]model.Event) {
	hashes := make(map[string]string, len(events))
	byKey := make(map[string]model.Event, len(events))
	for _, e := range events {
		hashes[e.EventKey] = EventHash(e)
		byKey[e.EventKey] = e
	}
	return hashes, byKey
}

func entityHashes(entities []model.Entity) map[string]string {
	hashes := make(map[string]string, len(entities))
	for _, e := range entities {
		hashes[e.EntityKey] = e.ContentHash
	}
	return hashes
}

// Compute diffs the current sets against the previous snapshot. Event
// changes carry the before and after record of every added, removed or
// updated event, ordered by key.
func Compute(prevEvents []model.Event, prevEntities []model.Entity, events []model.Event, entities []model.Entity) model.Delta {
	prevHashes, prevByKey := eventHashes(prevEvents)
	hashes, byKey := eventHashes(events)

	out := model.Delta{
		Events:       diff(prevHashes, hashes),
		Entities:     diff(entityHashes(prevEntities), entityHashes(entities)),
		EventChanges: []model.EventChange{},
	}

	changed := make([]string, 0, len(out.Events.Added)+len(out.Events.Removed)+len(out.Events.Updated))
	changed = append(changed, out.Events.Added...)
	changed = append(changed, out.Events.Removed...)
	changed = append(changed, out.Events.Updated...)
	sort.Strings(changed)

	for _, key := range changed {
		change := model.EventChange{EventKey: key}
		if e, ok := prevByKey[key]; ok {
			change.Before = &e
		}
		if e, ok := byKey[key]; ok {
			change.After = &e
		}
		out.EventChanges = append(out.EventChanges, change)
	}
	return out
}
