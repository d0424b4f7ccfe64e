package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"qa-guru-be/pkg/llm"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewGeminiProvider("test-key")
	p.BaseURL = srv.URL
	return p
}

func TestNormalizeChunk(t *testing.T) {
	raw := `{
		"candidates": [{
			"content": {"role": "model", "parts": [
				{"text": "thinking...", "thought": true},
				{"text": "Hello "},
				{"text": "world"},
				{"functionCall": {"name": "edit_document", "args": {"edit_type": "delete_question", "question_number": 2}}}
			]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15, "cachedContentTokenCount": 4}
	}`
	var res geminiResponse
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatal(err)
	}

	chunk := normalizeChunk(&res)
	if chunk.Text != "Hello world" {
		t.Errorf("Text = %q, thought part must be excluded", chunk.Text)
	}
	if chunk.Thinking != "thinking..." {
		t.Errorf("Thinking = %q, thought part must be captured", chunk.Thinking)
	}
	if len(chunk.FunctionCalls) != 1 || chunk.FunctionCalls[0].Name != "edit_document" {
		t.Errorf("FunctionCalls = %+v", chunk.FunctionCalls)
	}
	if chunk.FinishReason != "STOP" {
		t.Errorf("FinishReason = %q", chunk.FinishReason)
	}
	if chunk.Usage == nil || chunk.Usage.TotalTokens != 15 || chunk.Usage.CachedTokens != 4 {
		t.Errorf("Usage = %+v", chunk.Usage)
	}
}

func TestGenerateContentWire(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest

	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotReq)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	})

	temp := 0.2
	chunk, err := p.GenerateContent(context.Background(), "gemini-2.0-flash",
		[]llm.Content{llm.UserText("hi")},
		&llm.GenerateConfig{
			SystemInstruction: "be brief",
			Temperature:       &temp,
			Tools:             []llm.ToolDecl{{Name: "edit_document"}},
			CachedContent:     "cachedContents/abc",
		})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}

	if chunk.Text != "ok" {
		t.Errorf("Text = %q", chunk.Text)
	}
	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "be brief" {
		t.Error("system instruction missing from wire request")
	}
	if gotReq.GenerationConfig == nil || gotReq.GenerationConfig.Temperature == nil || *gotReq.GenerationConfig.Temperature != 0.2 {
		t.Error("temperature missing from wire request")
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].FunctionDeclarations[0].Name != "edit_document" {
		t.Error("tool declaration missing from wire request")
	}
	if gotReq.CachedContent != "cachedContents/abc" {
		t.Errorf("cachedContent = %q", gotReq.CachedContent)
	}
}

func TestGenerateContentHTTPError(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := p.GenerateContent(context.Background(), "m", []llm.Content{llm.UserText("hi")}, nil)
	if err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestStreamGenerateContent(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q, want sse", r.URL.Query().Get("alt"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	events, err := p.StreamGenerateContent(context.Background(), "m", []llm.Content{llm.UserText("hi")}, nil)
	if err != nil {
		t.Fatalf("StreamGenerateContent: %v", err)
	}

	var text, finish string
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("stream error: %v", ev.Err)
		}
		text += ev.Chunk.Text
		if ev.Chunk.FinishReason != "" {
			finish = ev.Chunk.FinishReason
		}
	}
	if text != "Hello" {
		t.Errorf("streamed text = %q", text)
	}
	if finish != "STOP" {
		t.Errorf("finish = %q", finish)
	}
}

func TestListModels(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"models/gemini-2.0-flash","displayName":"Gemini 2.0 Flash","inputTokenLimit":1048576,"outputTokenLimit":8192}]}`)
	})

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("models = %d", len(models))
	}
	if models[0].Name != "gemini-2.0-flash" {
		t.Errorf("Name = %q, want models/ prefix trimmed", models[0].Name)
	}
	if models[0].InputTokenLimit != 1048576 {
		t.Errorf("InputTokenLimit = %d", models[0].InputTokenLimit)
	}
}
