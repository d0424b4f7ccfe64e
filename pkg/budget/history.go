package budget

import (
	"strings"
	"unicode/utf8"

	"qa-guru-be/pkg/store"
)

// TruncationMarker is appended to any document that was cut.
const TruncationMarker = "\n[... document truncated to fit the context budget]"

// TruncateSourceDocuments distributes maxTokens across the text documents
// proportionally to their share of total size, appending a marker to any
// document that was cut. Native documents pass through untouched. Documents
// already under budget are returned as-is; truncation never grows anything.
func TruncateSourceDocuments(docs []store.DocumentAttachment, maxTokens int) []store.DocumentAttachment {
	total := 0
	for _, doc := range docs {
		if !doc.Native {
			total += EstimateTokens(doc.Text)
		}
	}
	if total <= maxTokens {
		return docs
	}

	out := make([]store.DocumentAttachment, len(docs))
	for i, doc := range docs {
		out[i] = doc
		if doc.Native {
			continue
		}
		share := EstimateTokens(doc.Text)
		allowed := maxTokens * share / total

		// The marker is part of the document's allowance, otherwise a
		// marginal cut could grow the document instead of shrinking it.
		keepBytes := allowed*4 - len(TruncationMarker)
		if keepBytes < 0 {
			keepBytes = 0
		}
		for keepBytes > 0 && keepBytes < len(doc.Text) && !utf8.RuneStart(doc.Text[keepBytes]) {
			keepBytes--
		}
		if len(doc.Text)-keepBytes <= len(TruncationMarker) {
			continue
		}
		out[i].Text = doc.Text[:keepBytes] + TruncationMarker
	}
	return out
}

// turns groups history into user-led turns: each turn starts at a user
// message and carries its following model responses. Pairing is preserved so
// pruning can never leave an orphaned model message at the front.
func turns(messages []store.ChatMessage) [][]store.ChatMessage {
	var grouped [][]store.ChatMessage
	for _, msg := range messages {
		if msg.Role == store.ChatMessageRoleUser || len(grouped) == 0 {
			grouped = append(grouped, []store.ChatMessage{msg})
			continue
		}
		last := len(grouped) - 1
		grouped[last] = append(grouped[last], msg)
	}
	return grouped
}

func flatten(grouped [][]store.ChatMessage) []store.ChatMessage {
	var out []store.ChatMessage
	for _, turn := range grouped {
		out = append(out, turn...)
	}
	return out
}

func turnTokens(turn []store.ChatMessage) int {
	total := 0
	for _, msg := range turn {
		total += EstimateTokens(msg.Text)
	}
	return total
}

// PruneHistory enforces both a max-turn-count and a max-token ceiling by
// dropping the oldest user/model pairs from the front. It returns the kept
// suffix and the dropped prefix.
func (m *Manager) PruneHistory(messages []store.ChatMessage) (kept, dropped []store.ChatMessage) {
	grouped := turns(messages)

	keepFrom := 0
	if m.MaxHistoryTurns > 0 && len(grouped) > m.MaxHistoryTurns {
		keepFrom = len(grouped) - m.MaxHistoryTurns
	}

	if m.MaxHistoryTokens > 0 {
		total := 0
		for _, turn := range grouped[keepFrom:] {
			total += turnTokens(turn)
		}
		for total > m.MaxHistoryTokens && keepFrom < len(grouped)-1 {
			total -= turnTokens(grouped[keepFrom])
			keepFrom++
		}
	}

	return flatten(grouped[keepFrom:]), flatten(grouped[:keepFrom])
}

// CompactHistory wraps PruneHistory: when anything was dropped it prepends a
// synthetic user/model exchange summarizing the dropped user turns, so the
// provider keeps lossy awareness of earlier discussion without the token cost.
func (m *Manager) CompactHistory(messages []store.ChatMessage) []store.ChatMessage {
	kept, dropped := m.PruneHistory(messages)
	if len(dropped) == 0 {
		return kept
	}

	var topics []string
	for _, msg := range dropped {
		if msg.Role != store.ChatMessageRoleUser {
			continue
		}
		topics = append(topics, "- "+topicLine(msg.Text))
	}
	if len(topics) == 0 {
		return kept
	}

	summary := store.ChatMessage{
		Role: store.ChatMessageRoleUser,
		Text: "Earlier in this conversation (trimmed for length) we discussed:\n" + strings.Join(topics, "\n"),
	}
	ack := store.ChatMessage{
		Role: store.ChatMessageRoleModel,
		Text: "Understood. I will keep that earlier discussion in mind.",
	}
	return append([]store.ChatMessage{summary, ack}, kept...)
}

// topicLine is the first line of a user message, truncated to one summary line.
func topicLine(text string) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if len(line) > 60 {
		line = line[:60] + "..."
	}
	return line
}
