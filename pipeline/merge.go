package pipeline

import (
	"strings"

	"pharma-assistant/web/types"
)

// DedupKey derives the composite identity used to collapse duplicate chunks
// retrieved via different query variants: the explicit id when present, else
// (subject, section, sourceRange) lower-cased and joined, else a content
// prefix. Two chunks sharing a key are the same fact; the first-seen instance
// survives merge order.
func DedupKey(chunk types.RetrievedChunk) string {
	if chunk.ID != "" {
		return chunk.ID
	}
	m := chunk.Metadata
	if m.SubjectName != "" || m.Section != "" || m.SourceRange != "" {
		return strings.ToLower(m.SubjectName + "|" + m.Section + "|" + m.SourceRange)
	}
	prefix := chunk.Content
	if len(prefix) > 64 {
		prefix = prefix[:64]
	}
	return "content:" + strings.ToLower(prefix)
}

// MergeChunks folds per-variant result lists into one ordered candidate list.
// Deterministic and idempotent: ordering is decided entirely by variant
// priority and arrival position within each variant, never by completion
// timing.
//
// Steps: concatenate in variant-priority order, stable first-seen dedup by
// DedupKey (rewarding chunks from higher-weight variants), then a stable
// partition that moves exact topic-hint subject matches to the front as a
// block, and finally truncation to maxResults. The hint boost is a hard
// partition rather than score blending, preserving topical continuity over
// raw similarity.
func MergeChunks(perVariant [][]types.RetrievedChunk, activeTopic string, maxResults int) []types.RetrievedChunk {
	var merged []types.RetrievedChunk
	seen := make(map[string]struct{})

	for _, results := range perVariant {
		for _, chunk := range results {
			key := DedupKey(chunk)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, chunk)
		}
	}

	hint := strings.ToLower(strings.TrimSpace(activeTopic))
	if hint != "" {
		matched := make([]types.RetrievedChunk, 0, len(merged))
		rest := make([]types.RetrievedChunk, 0, len(merged))
		for _, chunk := range merged {
			if strings.ToLower(strings.TrimSpace(chunk.Metadata.SubjectName)) == hint {
				matched = append(matched, chunk)
			} else {
				rest = append(rest, chunk)
			}
		}
		// A hint matching zero chunks leaves ordering unchanged
		if len(matched) > 0 {
			merged = append(matched, rest...)
		}
	}

	if maxResults > 0 && len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	return merged
}
