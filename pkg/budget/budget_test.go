package budget

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"qa-guru-be/pkg/store"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

type fixedCounter struct{ n int }

func (c fixedCounter) CountTokens(ctx context.Context, text string) (int, error) {
	return c.n, nil
}

func TestEstimatePrefersCounter(t *testing.T) {
	m := NewManager(fixedCounter{n: 42})
	if got := m.Estimate(context.Background(), "whatever"); got != 42 {
		t.Errorf("Estimate = %d, want counter value 42", got)
	}

	m = NewManager(nil)
	if got := m.Estimate(context.Background(), "abcdefgh"); got != 2 {
		t.Errorf("Estimate = %d, want heuristic 2", got)
	}
}

func TestBuildSumsContributors(t *testing.T) {
	m := NewManager(nil)
	docs := []store.DocumentAttachment{
		{Name: "notes.txt", Text: strings.Repeat("a", 400)},         // 100 tokens
		{Name: "scan.pdf", Native: true, Data: make([]byte, 10000)}, // skipped
	}
	history := []store.ChatMessage{
		{Role: store.ChatMessageRoleUser, Text: strings.Repeat("b", 40)},  // 10
		{Role: store.ChatMessageRoleModel, Text: strings.Repeat("c", 40)}, // 10
	}

	b := m.Build(context.Background(), strings.Repeat("s", 80), docs, strings.Repeat("d", 40), history, strings.Repeat("m", 20))

	if b.SystemPrompt != 20 || b.SourceDocuments != 100 || b.DocumentState != 10 || b.History != 20 || b.NewMessage != 5 {
		t.Errorf("contributors = %+v", b)
	}
	if b.Total != 155 {
		t.Errorf("Total = %d, want 155", b.Total)
	}
	if b.OverBudget {
		t.Error("OverBudget = true under ceiling")
	}
	if b.Recommendation != "within budget" {
		t.Errorf("Recommendation = %q", b.Recommendation)
	}
}

func TestBuildOverBudgetRecommendations(t *testing.T) {
	m := NewManager(nil)
	m.Ceiling = 100
	m.MaxSourceTokens = 50
	m.MaxHistoryTokens = 50

	// Source documents dominate.
	docs := []store.DocumentAttachment{{Name: "big", Text: strings.Repeat("a", 800)}}
	b := m.Build(context.Background(), "", docs, "", nil, "")
	if !b.OverBudget {
		t.Fatal("expected over budget")
	}
	if !strings.Contains(b.Recommendation, "truncate source documents") {
		t.Errorf("Recommendation = %q", b.Recommendation)
	}

	// History dominates.
	history := []store.ChatMessage{{Role: store.ChatMessageRoleUser, Text: strings.Repeat("h", 800)}}
	b = m.Build(context.Background(), "", nil, "", history, "")
	if !strings.Contains(b.Recommendation, "compact conversation history") {
		t.Errorf("Recommendation = %q", b.Recommendation)
	}

	// Document state dominates.
	b = m.Build(context.Background(), "", nil, strings.Repeat("d", 800), nil, "")
	if !strings.Contains(b.Recommendation, "document state dominates") {
		t.Errorf("Recommendation = %q", b.Recommendation)
	}
}

func TestTruncateSourceDocuments(t *testing.T) {
	docs := []store.DocumentAttachment{
		{Name: "a", Text: strings.Repeat("x", 400)}, // 100 tokens
		{Name: "b", Text: strings.Repeat("y", 400)}, // 100 tokens
		{Name: "native", Native: true, Data: make([]byte, 5000)},
	}

	out := TruncateSourceDocuments(docs, 100)

	for _, doc := range out[:2] {
		if !strings.HasSuffix(doc.Text, TruncationMarker) {
			t.Errorf("%s: missing truncation marker", doc.Name)
		}
		if len(doc.Text) >= 400 {
			t.Errorf("%s: not truncated (%d bytes)", doc.Name, len(doc.Text))
		}
	}
	if out[2].Native != true || len(out[2].Data) != 5000 {
		t.Error("native document touched")
	}

	// Under budget is a no-op that returns the originals.
	same := TruncateSourceDocuments(docs, 10_000)
	if same[0].Text != docs[0].Text {
		t.Error("under-budget truncation modified a document")
	}
}

func TestTruncateSourceDocumentsNeverGrows(t *testing.T) {
	// A document marginally over budget: the cut is only a few bytes, far
	// smaller than the marker. Truncation must never increase the estimate.
	docs := []store.DocumentAttachment{{Name: "a", Text: strings.Repeat("x", 1604)}} // 401 tokens

	out := TruncateSourceDocuments(docs, 400)

	before := EstimateTokens(docs[0].Text)
	after := EstimateTokens(out[0].Text)
	if after > before {
		t.Errorf("tokens grew after truncation: before=%d after=%d", before, after)
	}
}

func TestTruncateSourceDocumentsSkipsMarginalCut(t *testing.T) {
	// Two docs, one slightly over its share. When the bytes to cut are fewer
	// than the marker would add, the document is left alone.
	docs := []store.DocumentAttachment{
		{Name: "a", Text: strings.Repeat("x", 400)}, // 100 tokens
		{Name: "b", Text: strings.Repeat("y", 4)},   // 1 token
	}

	out := TruncateSourceDocuments(docs, 100)

	if strings.Contains(out[1].Text, TruncationMarker) {
		t.Error("marginal document was truncated into growth")
	}
	if len(out[1].Text) > len(docs[1].Text) {
		t.Errorf("document grew: %d > %d bytes", len(out[1].Text), len(docs[1].Text))
	}
}

func TestTruncateSourceDocumentsRuneBoundary(t *testing.T) {
	docs := []store.DocumentAttachment{{Name: "a", Text: strings.Repeat("é", 800)}} // 1600 bytes, 400 tokens

	out := TruncateSourceDocuments(docs, 100)

	cut := strings.TrimSuffix(out[0].Text, TruncationMarker)
	if !utf8.ValidString(cut) {
		t.Error("truncation split a multibyte rune")
	}
}
