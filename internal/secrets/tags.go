package secrets

import (
	"encoding/json"
	"strings"
)

// NormalizeTags trims, drops empties and deduplicates while keeping first
// occurrence order. Order is irrelevant to equality but stable for display.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// EncodeTags serializes the canonical stored form: a JSON array of strings.
func EncodeTags(tags []string) []byte {
	data, err := json.Marshal(NormalizeTags(tags))
	if err != nil {
		return []byte("[]")
	}
	return data
}

// DecodeTags restores a tag set from its stored form. Legacy rows may hold a
// bare string (treated as a single-element set) or malformed payloads
// (treated as empty); neither is an error.
func DecodeTags(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err == nil {
		return NormalizeTags(tags)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return NormalizeTags([]string{single})
	}
	// Pre-JSON rows stored the raw string without quoting.
	if s := strings.TrimSpace(string(raw)); s != "" && !strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "{") {
		return NormalizeTags([]string{s})
	}
	return []string{}
}
