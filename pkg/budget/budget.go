package budget

import (
	"context"
	"fmt"

	"qa-guru-be/pkg/store"
)

// EstimateTokens is the ceil(len/4) heuristic. Good enough for budgeting
// decisions; never used for billing.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TokenCounter is the external, authoritative counting service. Absence
// degrades gracefully to the heuristic.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// Budget is the per-turn token accounting across every request contributor.
// Recomputed each turn, never persisted.
type Budget struct {
	SystemPrompt    int    `json:"system_prompt"`
	SourceDocuments int    `json:"source_documents"`
	DocumentState   int    `json:"document_state"`
	History         int    `json:"history"`
	NewMessage      int    `json:"new_message"`
	Total           int    `json:"total"`
	OverBudget      bool   `json:"over_budget"`
	Recommendation  string `json:"recommendation"`
}

// Default limits. The ceiling is a practical quality bound well below the
// provider's hard context limit: answers degrade long before requests fail.
const (
	DefaultCeiling          = 100_000
	DefaultMaxHistoryTurns  = 10
	DefaultMaxHistoryTokens = 30_000
	DefaultMaxSourceTokens  = 40_000
)

// Manager sizes requests against the configured limits.
type Manager struct {
	Ceiling          int
	MaxHistoryTurns  int
	MaxHistoryTokens int
	MaxSourceTokens  int

	counter TokenCounter
}

// NewManager creates a budget manager with default limits. counter may be nil.
func NewManager(counter TokenCounter) *Manager {
	return &Manager{
		Ceiling:          DefaultCeiling,
		MaxHistoryTurns:  DefaultMaxHistoryTurns,
		MaxHistoryTokens: DefaultMaxHistoryTokens,
		MaxSourceTokens:  DefaultMaxSourceTokens,
		counter:          counter,
	}
}

// Estimate consults the authoritative counter when wired, otherwise the heuristic.
func (m *Manager) Estimate(ctx context.Context, text string) int {
	if m.counter != nil {
		if n, err := m.counter.CountTokens(ctx, text); err == nil {
			return n
		}
	}
	return EstimateTokens(text)
}

// Build sums per-contributor estimates for the next request and flags
// OverBudget against the practical ceiling.
func (m *Manager) Build(ctx context.Context, systemPrompt string, docs []store.DocumentAttachment, documentState string, history []store.ChatMessage, newMessage string) Budget {
	b := Budget{
		SystemPrompt:  m.Estimate(ctx, systemPrompt),
		DocumentState: m.Estimate(ctx, documentState),
		NewMessage:    m.Estimate(ctx, newMessage),
	}
	for _, doc := range docs {
		if doc.Native {
			continue // opaque binary, passed through untouched
		}
		b.SourceDocuments += m.Estimate(ctx, doc.Text)
	}
	for _, msg := range history {
		b.History += m.Estimate(ctx, msg.Text)
	}

	b.Total = b.SystemPrompt + b.SourceDocuments + b.DocumentState + b.History + b.NewMessage
	b.OverBudget = b.Total > m.Ceiling
	b.Recommendation = m.recommend(b)
	return b
}

func (m *Manager) recommend(b Budget) string {
	if !b.OverBudget {
		return "within budget"
	}
	switch {
	case b.SourceDocuments > m.MaxSourceTokens:
		return fmt.Sprintf("over budget (%d > %d): truncate source documents first", b.Total, m.Ceiling)
	case b.History > m.MaxHistoryTokens:
		return fmt.Sprintf("over budget (%d > %d): compact conversation history first", b.Total, m.Ceiling)
	default:
		return fmt.Sprintf("over budget (%d > %d): document state dominates; consider a shorter excerpt", b.Total, m.Ceiling)
	}
}
