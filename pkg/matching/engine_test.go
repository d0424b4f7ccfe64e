package matching

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCorrector struct {
	snippet string
	err     error
	calls   int
}

func (f *fakeCorrector) CorrectSnippet(ctx context.Context, documentMarkup, failedSnippet, failureSummary, instruction string) (string, error) {
	f.calls++
	return f.snippet, f.err
}

func layerRecorder(e *Engine) *[]string {
	var layers []string
	e.OnLayer = func(layer string) { layers = append(layers, layer) }
	return &layers
}

func TestApplyExactLayer(t *testing.T) {
	engine := NewEngine(nil, nil)
	layers := layerRecorder(engine)

	doc := `<p>keep</p><p>replace me</p><p>keep too</p>`
	res, err := engine.Apply(context.Background(), doc, "<p>replace me</p>", "<p>replaced</p>", "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Layer != LayerExact {
		t.Errorf("Layer = %s, want exact", res.Layer)
	}
	if res.Markup != `<p>keep</p><p>replaced</p><p>keep too</p>` {
		t.Errorf("Markup = %s", res.Markup)
	}
	if len(*layers) != 1 || (*layers)[0] != LayerExact {
		t.Errorf("layers tried = %v, want [exact]", *layers)
	}
}

func TestApplyStructuralLayerAttributeDrift(t *testing.T) {
	engine := NewEngine(nil, nil)
	layers := layerRecorder(engine)

	// Model remembered the paragraph without its class attribute and with
	// different spacing; text content still identifies it.
	doc := `<p class="answer" data-id="7">Port   80</p><p>other text</p>`
	res, err := engine.Apply(context.Background(), doc, "<p>Port 80</p>", "<p>Port 443</p>", "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Layer != LayerStructural {
		t.Errorf("Layer = %s, want structural", res.Layer)
	}
	if res.Markup != `<p>Port 443</p><p>other text</p>` {
		t.Errorf("Markup = %s", res.Markup)
	}
	if got := strings.Join(*layers, ","); got != "exact,structural" {
		t.Errorf("layers tried = %s", got)
	}
}

func TestApplyStructuralLayerEntities(t *testing.T) {
	engine := NewEngine(nil, nil)

	// The document encodes the ampersand; the model's snippet does not.
	doc := `<p>Fish &amp; Chips</p>`
	res, err := engine.Apply(context.Background(), doc, "<p>Fish & Chips</p>", "<p>Bangers</p>", "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Layer != LayerStructural {
		t.Errorf("Layer = %s, want structural", res.Layer)
	}
	if res.Markup != `<p>Bangers</p>` {
		t.Errorf("Markup = %s", res.Markup)
	}
}

func TestApplyStructuralLayerContainer(t *testing.T) {
	engine := NewEngine(nil, nil)

	doc := "<p>before</p><div class=\"q\">\n<p>first line</p>\n<p>second line</p>\n</div><p>after</p>"
	search := "<div>\n  <p>first line</p>\n  <p>second line</p>\n</div>"
	res, err := engine.Apply(context.Background(), doc, search, "<div><p>rewritten</p></div>", "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Layer != LayerStructural {
		t.Errorf("Layer = %s, want structural", res.Layer)
	}
	if res.Markup != `<p>before</p><div><p>rewritten</p></div><p>after</p>` {
		t.Errorf("Markup = %s", res.Markup)
	}
}

func TestApplyFuzzyLayer(t *testing.T) {
	engine := NewEngine(nil, nil)
	layers := layerRecorder(engine)

	// The snippet straddles two paragraphs and differs only in whitespace, so
	// neither the exact nor the element-level layer can place it.
	doc := "<p>alpha beta gamma</p>\n<p>delta epsilon</p>"
	res, err := engine.Apply(context.Background(), doc, "gamma</p> <p>delta", "GAMMA</p><p>DELTA", "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Layer != LayerFuzzy {
		t.Errorf("Layer = %s, want fuzzy", res.Layer)
	}
	if res.Markup != "<p>alpha beta GAMMA</p><p>DELTA epsilon</p>" {
		t.Errorf("Markup = %s", res.Markup)
	}
	if got := strings.Join(*layers, ","); got != "exact,structural,fuzzy" {
		t.Errorf("layers tried = %s", got)
	}
}

func TestApplySelfCorrectionLayer(t *testing.T) {
	doc := `<p>The mitochondria is the powerhouse of the cell</p>`
	corrector := &fakeCorrector{snippet: doc}
	engine := NewEngine(corrector, nil)
	layers := layerRecorder(engine)

	res, err := engine.Apply(context.Background(), doc, "<p>The mitochondria powers cells</p>", "<p>Corrected biology</p>", "fix the biology answer")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Layer != LayerCorrection {
		t.Errorf("Layer = %s, want self_correction", res.Layer)
	}
	if res.Markup != `<p>Corrected biology</p>` {
		t.Errorf("Markup = %s", res.Markup)
	}
	if corrector.calls != 1 {
		t.Errorf("corrector calls = %d, want 1", corrector.calls)
	}
	if got := strings.Join(*layers, ","); got != "exact,structural,fuzzy,self_correction" {
		t.Errorf("layers tried = %s", got)
	}
}

func TestApplySelfCorrectionSkippedWithoutInstruction(t *testing.T) {
	corrector := &fakeCorrector{snippet: "anything"}
	engine := NewEngine(corrector, nil)

	doc := `<p>completely unrelated content</p>`
	_, err := engine.Apply(context.Background(), doc, "<p>nothing like the document</p>", "<p>x</p>", "")
	if err == nil {
		t.Fatal("expected failure")
	}
	if corrector.calls != 0 {
		t.Errorf("corrector called despite empty instruction")
	}
	var matchErr *MatchError
	if !errors.As(err, &matchErr) {
		t.Fatalf("err type = %T", err)
	}
	if !strings.Contains(matchErr.Error(), "skipped: no instruction available") {
		t.Errorf("attempts missing skip reason: %v", matchErr)
	}
}

func TestApplyMatchErrorDiagnostic(t *testing.T) {
	engine := NewEngine(&fakeCorrector{err: errors.New("model unavailable")}, nil)

	doc := `<p>What year did the war end?</p><p>In 1945 the war ended</p>`
	_, err := engine.Apply(context.Background(), doc, "<p>The war ended in the year 1945</p>", "<p>x</p>", "fix it")
	if err == nil {
		t.Fatal("expected failure")
	}

	var matchErr *MatchError
	if !errors.As(err, &matchErr) {
		t.Fatalf("err type = %T", err)
	}
	if len(matchErr.Attempts) != 4 {
		t.Errorf("Attempts = %d, want 4", len(matchErr.Attempts))
	}
	if matchErr.ClosestText == "" {
		t.Error("ClosestText empty, diagnostic lost")
	}
	if matchErr.ClosestPercent <= 0 {
		t.Errorf("ClosestPercent = %d", matchErr.ClosestPercent)
	}
	if !strings.Contains(matchErr.Error(), "closest block") {
		t.Errorf("Error() = %q", matchErr.Error())
	}
}

func TestApplyCancelled(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Apply(ctx, "<p>a</p>", "<p>a</p>", "<p>b</p>", "")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
