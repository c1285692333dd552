package pipeline

import "strings"

// ConversationContext holds the active-topic hint and the trimmed turn
// history for one exchange. The caller carries both forward between turns;
// nothing here persists across requests.
type ConversationContext struct {
	History     []string
	ActiveTopic string
}

// NewConversationContext trims history to the most recent maxTurns entries
// and normalizes the topic hint.
func NewConversationContext(history []string, activeTopic string, maxTurns int) ConversationContext {
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	trimmed := make([]string, 0, len(history))
	for _, turn := range history {
		turn = strings.TrimSpace(turn)
		if turn != "" {
			trimmed = append(trimmed, turn)
		}
	}
	return ConversationContext{
		History:     trimmed,
		ActiveTopic: strings.TrimSpace(activeTopic),
	}
}

// LastUserTurn scans history backward for the most recent user turn. Turns
// prefixed "assistant:" are skipped; a "user:" prefix is stripped when
// present, otherwise the raw turn is treated as user text.
func (c ConversationContext) LastUserTurn() string {
	for i := len(c.History) - 1; i >= 0; i-- {
		turn := c.History[i]
		lower := strings.ToLower(turn)
		if strings.HasPrefix(lower, "assistant:") {
			continue
		}
		if strings.HasPrefix(lower, "user:") {
			return strings.TrimSpace(turn[len("user:"):])
		}
		return turn
	}
	return ""
}

// Query is one staff question plus its conversational surroundings.
type Query struct {
	Text        string
	History     []string
	ActiveTopic string
	MaxResults  int
}
