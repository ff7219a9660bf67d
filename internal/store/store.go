// Package store persists the pipeline's documents. Every write replaces
// whole documents, and PutMany commits a group of documents all-or-nothing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrCorrupt  = errors.New("document is corrupt")
)

const (
	DocPages            = "pages.json"
	DocEvents           = "events.json"
	DocEntities         = "entities.json"
	DocFreshness        = "freshness.json"
	DocViews            = "views.json"
	DocDelta            = "delta.json"
	DocSnapshotEvents   = "snapshot_events.json"
	DocSnapshotEntities = "snapshot_entities.json"
)

// SummaryDoc names the summary document of a stage.
func SummaryDoc(stage string) string {
	return fmt.Sprintf("summary_%s.json", stage)
}

type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, name string) ([]byte, error)
	// PutMany writes every document or none of them.
	PutMany(ctx context.Context, docs map[string][]byte) error
	Close() error
}

func sortedNames(docs map[string][]byte) []string {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load decodes a json document, undecodable documents are ErrCorrupt.
func Load[T any](ctx context.Context, s Store, name string) (T, error) {
	var out T
	body, err := s.Get(ctx, name)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(body, &out)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %s", ErrCorrupt, name, err.Error())
	}
	return out, nil
}

// LoadOptional is Load where a missing or corrupt document is replaced by
// the zero value. A corrupt document also produces a warning.
func LoadOptional[T any](ctx context.Context, s Store, name string) (value T, warning string, err error) {
	value, err = Load[T](ctx, s, name)
	switch {
	case err == nil:
		return value, "", nil
	case errors.Is(err, ErrNotFound):
		return value, "", nil
	case errors.Is(err, ErrCorrupt):
		return value, fmt.Sprintf("%s is unreadable, treating it as absent: %s", name, err.Error()), nil
	}
	return value, "", err
}

func Save(ctx context.Context, s Store, name string, value any) error {
	return SaveMany(ctx, s, map[string]any{name: value})
}

func SaveMany(ctx context.Context, s Store, values map[string]any) error {
	docs := make(map[string][]byte, len(values))
	for name, v := range values {
		body, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		docs[name] = append(body, '\n')
	}
	return s.PutMany(ctx, docs)
}
