package matching

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"qa-guru-be/pkg/llm"
)

// Corrector is the last-resort matching layer: given a snippet that failed
// every mechanical layer, it asks a model for a corrected verbatim substring.
type Corrector interface {
	CorrectSnippet(ctx context.Context, documentMarkup, failedSnippet, failureSummary, instruction string) (string, error)
}

// LLMCorrector implements Corrector with a deterministic secondary provider
// call (temperature 0, non-streaming).
type LLMCorrector struct {
	provider llm.Provider
	model    string
}

func NewLLMCorrector(provider llm.Provider, model string) *LLMCorrector {
	return &LLMCorrector{provider: provider, model: model}
}

const correctionPrompt = `You tried to edit a document but your search snippet does not appear in it.

Original instruction: %s

Failed search snippet:
%s

Why matching failed: %s

Full document markup:
%s

Return ONLY the corrected search snippet: an exact, verbatim substring of the
document markup above that corresponds to what the instruction targets.
Do not explain. Do not wrap the answer in code fences.`

func (c *LLMCorrector) CorrectSnippet(ctx context.Context, documentMarkup, failedSnippet, failureSummary, instruction string) (string, error) {
	prompt := fmt.Sprintf(correctionPrompt, instruction, failedSnippet, failureSummary, documentMarkup)

	chunk, err := c.provider.GenerateContent(ctx, c.model, []llm.Content{llm.UserText(prompt)}, &llm.GenerateConfig{
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		return "", fmt.Errorf("self-correction call failed: %w", err)
	}

	corrected := stripCodeFences(chunk.Text)
	if corrected == "" {
		return "", fmt.Errorf("self-correction returned an empty snippet")
	}
	if !strings.Contains(documentMarkup, corrected) {
		return "", fmt.Errorf("self-correction returned a snippet that is not present in the document")
	}
	return corrected, nil
}

// stripCodeFences cleans markdown wrappers the model sometimes adds despite
// instructions.
func stripCodeFences(text string) string {
	b := []byte(text)
	b = bytes.TrimSpace(b)
	b = bytes.TrimPrefix(b, []byte("```html"))
	b = bytes.TrimPrefix(b, []byte("```json"))
	b = bytes.TrimPrefix(b, []byte("```"))
	b = bytes.TrimSuffix(b, []byte("```"))
	b = bytes.TrimSpace(b)
	return string(b)
}
