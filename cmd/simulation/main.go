package main

import (
	"context"
	"fmt"
	"log"

	"qa-guru-be/pkg/agent"
	"qa-guru-be/pkg/budget"
	"qa-guru-be/pkg/llm"
	"qa-guru-be/pkg/matching"
	"qa-guru-be/pkg/store"

	"github.com/fatih/color"
)

const sampleDocument = `<p>Practice set for the networking exam.</p>
<p><strong>1: What does DNS stand for?</strong></p>
<p><strong>Domain Name System</strong></p>
<p><strong>2: Which port does HTTPS use?</strong></p>
<p><strong>Port 80</strong></p>
<p><em>Reference: RFC 2818</em></p>`

// scriptedProvider replays a fixed sequence of responses, one per call.
type scriptedProvider struct {
	responses []llm.ResponseChunk
	calls     int
}

func (p *scriptedProvider) GenerateContent(ctx context.Context, model string, contents []llm.Content, cfg *llm.GenerateConfig) (*llm.ResponseChunk, error) {
	return p.next()
}

func (p *scriptedProvider) StreamGenerateContent(ctx context.Context, model string, contents []llm.Content, cfg *llm.GenerateConfig) (<-chan llm.StreamEvent, error) {
	chunk, err := p.next()
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamEvent, 1)
	ch <- llm.StreamEvent{Chunk: chunk}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{{Name: "scripted"}}, nil
}

func (p *scriptedProvider) SupportsCaching() bool { return false }

func (p *scriptedProvider) next() (*llm.ResponseChunk, error) {
	if p.calls >= len(p.responses) {
		return nil, fmt.Errorf("script exhausted after %d calls", p.calls)
	}
	chunk := p.responses[p.calls]
	p.calls++
	return &chunk, nil
}

type consoleSink struct{}

func (consoleSink) Publish(event agent.TurnEvent) {
	switch event.Type {
	case agent.EventChunk:
		color.White("  stream: %s", event.Text)
	case agent.EventTool:
		color.Yellow("  edit:   %s", event.Text)
	default:
		color.Red("  status: %s", event.Text)
	}
}

func main() {
	color.Cyan("=== Agent Loop Simulation ===")

	provider := &scriptedProvider{
		responses: []llm.ResponseChunk{
			{
				FunctionCalls: []llm.FunctionCall{{
					Name: "edit_document",
					Args: map[string]interface{}{
						"edit_type":       "edit_question",
						"question_number": 2,
						"field":           "answer",
						"new_content":     "Port 443",
					},
				}},
			},
			{Text: "Fixed it: HTTPS uses port 443, not 80."},
		},
	}

	engine := matching.NewEngine(nil, nil)
	loop := agent.NewLoop(
		provider,
		agent.NewEditor(engine, nil),
		budget.NewManager(nil),
		nil,
		consoleSink{},
		nil,
		agent.Config{Model: "scripted"},
	)

	session := &store.Session{ID: "sim-session", UserID: "sim-user"}

	color.Green("USER: The HTTPS answer looks wrong, can you fix it?")
	result, err := loop.RunTurn(context.Background(), agent.TurnInput{
		Session:        session,
		DocumentMarkup: sampleDocument,
		Message:        "The HTTPS answer looks wrong, can you fix it?",
	})
	if err != nil {
		log.Fatalf("turn failed: %v", err)
	}

	color.Green("AI: %s", result.Reply)
	fmt.Printf("\nround trips: %d, changed: %v\n", result.RoundTrips, result.Changed)
	if result.Scroll != nil {
		fmt.Printf("scroll hint: %s #%d\n", result.Scroll.Type, result.Scroll.QuestionNumber)
	}
	fmt.Println("\n--- document after turn ---")
	fmt.Println(result.DocumentMarkup)
}
