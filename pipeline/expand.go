package pipeline

import (
	"sort"
	"strings"
)

// QueryVariant is one weighted search-query formulation. Higher weight means
// higher retrieval priority and wins ordering tie-breaks downstream.
type QueryVariant struct {
	Text   string
	Weight float64
}

// ExpandQuery builds the ranked variant list for one question: the raw
// question always, the topic-hint prefix when a hint exists, or the most
// recent user turn prefix when only history exists. The returned list is
// deduplicated by exact text, ordered by descending weight, and truncated to
// the retrieval cap: one variant without a hint, two with one. The cap bounds
// embedding fan-out cost per question.
func ExpandQuery(question string, conv ConversationContext) []QueryVariant {
	question = strings.TrimSpace(question)

	variants := []QueryVariant{{Text: question, Weight: 1}}
	retrievalCap := 1

	if conv.ActiveTopic != "" {
		retrievalCap = 2
		variants = append(variants, QueryVariant{
			Text:   conv.ActiveTopic + " " + question,
			Weight: 2,
		})
		if !strings.Contains(strings.ToLower(question), strings.ToLower(conv.ActiveTopic)) {
			variants = append(variants, QueryVariant{
				Text:   conv.ActiveTopic,
				Weight: 0.5,
			})
		}
	} else if last := conv.LastUserTurn(); last != "" && !strings.EqualFold(last, question) {
		variants = append(variants, QueryVariant{
			Text:   last + " " + question,
			Weight: 1.5,
		})
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Weight > variants[j].Weight
	})

	seen := make(map[string]struct{}, len(variants))
	deduped := variants[:0]
	for _, v := range variants {
		if _, dup := seen[v.Text]; dup {
			continue
		}
		seen[v.Text] = struct{}{}
		deduped = append(deduped, v)
	}

	if len(deduped) > retrievalCap {
		deduped = deduped[:retrievalCap]
	}
	return deduped
}
