package matching

import (
	"context"
	"fmt"
	"log"
	"strings"

	"qa-guru-be/pkg/llm"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Layer names in attempt order.
const (
	LayerExact      = "exact"
	LayerStructural = "structural"
	LayerFuzzy      = "fuzzy"
	LayerCorrection = "self_correction"
)

// LayerAttempt records one failed layer for the diagnostic.
type LayerAttempt struct {
	Layer  string
	Reason string
}

// MatchError is returned when every layer is exhausted. It carries a
// human-readable account of what was tried so the agent loop can surface it
// (or feed it back to the model) instead of silently dropping the edit.
type MatchError struct {
	Attempts       []LayerAttempt
	ClosestText    string
	ClosestPercent int
}

func (e *MatchError) Error() string {
	var sb strings.Builder
	sb.WriteString("no matching layer located the snippet:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, " [%s: %s]", a.Layer, a.Reason)
	}
	if e.ClosestText != "" {
		fmt.Fprintf(&sb, " closest block (%d%% similar): %q", e.ClosestPercent, e.ClosestText)
	}
	return sb.String()
}

// Result is a successful match: the rewritten document plus which layer won.
type Result struct {
	Markup string
	Layer  string
}

// Engine locates an LLM-proposed snippet in live document markup and replaces
// it, trying layers of increasing tolerance. The corrector is optional; when
// nil the fourth layer is skipped.
type Engine struct {
	corrector Corrector
	logger    *log.Logger

	// OnLayer is invoked with each layer name before it runs. Tests use it to
	// verify layer ordering; nil in production.
	OnLayer func(layer string)
}

func NewEngine(corrector Corrector, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{corrector: corrector, logger: logger}
}

func (e *Engine) enterLayer(name string) {
	if e.OnLayer != nil {
		e.OnLayer(name)
	}
}

// Apply attempts the replacement, first success wins. The instruction string
// comes from the originating tool call and gates the self-correction layer:
// without it there is nothing to re-prompt with.
func (e *Engine) Apply(ctx context.Context, markup, search, replacement, instruction string) (*Result, error) {
	var attempts []LayerAttempt

	// Layer 1: exact substring.
	if err := ctx.Err(); err != nil {
		return nil, llm.CancelledError(err)
	}
	e.enterLayer(LayerExact)
	if idx := strings.Index(markup, search); idx >= 0 {
		e.logger.Printf("[MATCH] Layer 1 (exact) hit at offset %d", idx)
		return &Result{
			Markup: markup[:idx] + replacement + markup[idx+len(search):],
			Layer:  LayerExact,
		}, nil
	}
	attempts = append(attempts, LayerAttempt{LayerExact, "snippet is not a literal substring"})

	// Layer 2: structural tree match.
	if err := ctx.Err(); err != nil {
		return nil, llm.CancelledError(err)
	}
	e.enterLayer(LayerStructural)
	if updated, ok, reason := structuralMatch(markup, search, replacement); ok {
		e.logger.Printf("[MATCH] Layer 2 (structural) hit")
		return &Result{Markup: updated, Layer: LayerStructural}, nil
	} else {
		attempts = append(attempts, LayerAttempt{LayerStructural, reason})
	}

	// Layer 3: regex fuzzy match.
	if err := ctx.Err(); err != nil {
		return nil, llm.CancelledError(err)
	}
	e.enterLayer(LayerFuzzy)
	if updated, ok, reason := fuzzyMatch(markup, search, replacement); ok {
		e.logger.Printf("[MATCH] Layer 3 (fuzzy) hit")
		return &Result{Markup: updated, Layer: LayerFuzzy}, nil
	} else {
		attempts = append(attempts, LayerAttempt{LayerFuzzy, reason})
	}

	// Layer 4: LLM self-correction, only when an instruction is available.
	if err := ctx.Err(); err != nil {
		return nil, llm.CancelledError(err)
	}
	if e.corrector != nil && instruction != "" {
		e.enterLayer(LayerCorrection)
		summary := (&MatchError{Attempts: attempts}).Error()
		corrected, err := e.corrector.CorrectSnippet(ctx, markup, search, summary, instruction)
		if err != nil {
			if llm.IsCancelled(err) {
				return nil, err
			}
			attempts = append(attempts, LayerAttempt{LayerCorrection, err.Error()})
		} else if idx := strings.Index(markup, corrected); idx >= 0 {
			e.logger.Printf("[MATCH] Layer 4 (self-correction) produced a verbatim snippet")
			return &Result{
				Markup: markup[:idx] + replacement + markup[idx+len(corrected):],
				Layer:  LayerCorrection,
			}, nil
		} else {
			attempts = append(attempts, LayerAttempt{LayerCorrection, "corrected snippet vanished between validation and replacement"})
		}
	} else {
		attempts = append(attempts, LayerAttempt{LayerCorrection, "skipped: no instruction available"})
	}

	matchErr := &MatchError{Attempts: attempts}
	matchErr.ClosestText, matchErr.ClosestPercent = closestBlock(markup, search)
	e.logger.Printf("[MATCH] all layers exhausted: %v", matchErr)
	return nil, matchErr
}

// closestBlock finds the document block most similar to the snippet text, for
// the failure diagnostic. Similarity is Levenshtein-based over normalized text.
func closestBlock(markup, search string) (string, int) {
	normSearch := normalizeText(textOf(search))
	if normSearch == "" {
		return "", 0
	}

	dmp := diffmatchpatch.New()
	bestText := ""
	bestSim := 0.0
	for _, el := range indexElements(markup) {
		if el.container || el.normText == "" {
			continue
		}
		diffs := dmp.DiffMain(normSearch, el.normText, false)
		dist := dmp.DiffLevenshtein(diffs)
		longest := len(normSearch)
		if len(el.normText) > longest {
			longest = len(el.normText)
		}
		sim := 1.0 - float64(dist)/float64(longest)
		if sim > bestSim {
			bestSim = sim
			bestText = el.text
		}
	}

	bestText = strings.TrimSpace(bestText)
	if len(bestText) > 80 {
		bestText = bestText[:80] + "..."
	}
	return bestText, int(bestSim * 100)
}
