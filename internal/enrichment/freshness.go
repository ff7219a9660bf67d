package enrichment

import (
	"time"

	"comebackwatch/internal/model"
)

// NeedsRefresh is true when the entity was never fetched, its last fetch is
// at least interval old, or force is set.
func NeedsRefresh(freshness model.Freshness, key string, now time.Time, interval time.Duration, force bool) bool {
	if force {
		return true
	}
	rec, ok := freshness[key]
	if !ok || rec.LastFetchedAt.IsZero() {
		return true
	}
	return now.Sub(rec.LastFetchedAt) >= interval
}
