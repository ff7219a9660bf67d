package enrichment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"comebackwatch/internal/model"
)

const maxReferences = 20

// ContentHash hashes the semantic content of the attributes. encoding/json
// writes map keys sorted, link and media order is normalized so only the
// set of references matters.
func ContentHash(attrs model.Attributes) string {
	release := attrs.Release
	if release == nil {
		release = map[string]string{}
	}
	projection := map[string]any{
		"name":           attrs.Name,
		"group":          attrs.Group,
		"classification": attrs.Classification,
		"release":        release,
		"links":          sortedCopy(attrs.Links),
		"media":          sortedCopy(attrs.Media),
	}
	encoded, err := json.Marshal(projection)
	if err != nil {
		// a map of strings cannot fail to encode
		panic(err)
	}
	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:])
}

func sortedCopy(values []string) []string {
	out := append([]string{}, values...)
	sort.Strings(out)
	return out
}

// boundedUnique keeps the first max distinct values, in order.
func boundedUnique(values []string, max int) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		if len(out) >= max {
			break
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
