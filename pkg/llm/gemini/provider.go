package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qa-guru-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the Google Generative Language API directly.
type GeminiProvider struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Ensure GeminiProvider implements Provider
var _ llm.Provider = &GeminiProvider{}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return &GeminiProvider{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
	Thought          bool                    `json:"thought,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiFunctionDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	CachedContent     string                  `json:"cachedContent,omitempty"`
}

type geminiCandidate struct {
	Content      *geminiContent `json:"content"`
	FinishReason string         `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata"`
}

type geminiModel struct {
	Name             string `json:"name"`
	DisplayName      string `json:"displayName"`
	InputTokenLimit  int    `json:"inputTokenLimit"`
	OutputTokenLimit int    `json:"outputTokenLimit"`
}

type geminiModelList struct {
	Models        []geminiModel `json:"models"`
	NextPageToken string        `json:"nextPageToken"`
}

// --- Wire mapping ---

func contentsToWire(contents []llm.Content) []geminiContent {
	wire := make([]geminiContent, 0, len(contents))
	for _, c := range contents {
		gc := geminiContent{Role: c.Role}
		for _, p := range c.Parts {
			gp := geminiPart{Thought: p.Thought}
			switch {
			case p.InlineData != nil:
				gp.InlineData = &geminiInlineData{
					MIMEType: p.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
				}
			case p.FunctionCall != nil:
				gp.FunctionCall = &geminiFunctionCall{
					Name: p.FunctionCall.Name,
					Args: p.FunctionCall.Args,
				}
			case p.FunctionResponse != nil:
				gp.FunctionResponse = &geminiFunctionResponse{
					Name:     p.FunctionResponse.Name,
					Response: p.FunctionResponse.Response,
				}
			default:
				gp.Text = p.Text
			}
			gc.Parts = append(gc.Parts, gp)
		}
		wire = append(wire, gc)
	}
	return wire
}

// normalizeChunk maps one raw API response into the canonical chunk shape.
// Thought parts are collected separately from the reply text.
func normalizeChunk(res *geminiResponse) *llm.ResponseChunk {
	chunk := &llm.ResponseChunk{}
	if len(res.Candidates) > 0 {
		cand := res.Candidates[0]
		chunk.FinishReason = cand.FinishReason
		if cand.Content != nil {
			var text, thinking strings.Builder
			for _, part := range cand.Content.Parts {
				if part.FunctionCall != nil {
					chunk.FunctionCalls = append(chunk.FunctionCalls, llm.FunctionCall{
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					})
					continue
				}
				if part.Thought {
					thinking.WriteString(part.Text)
					continue
				}
				text.WriteString(part.Text)
			}
			chunk.Text = text.String()
			chunk.Thinking = thinking.String()
		}
	}
	if res.UsageMetadata != nil {
		chunk.Usage = &llm.UsageMetadata{
			PromptTokens:   res.UsageMetadata.PromptTokenCount,
			ResponseTokens: res.UsageMetadata.CandidatesTokenCount,
			TotalTokens:    res.UsageMetadata.TotalTokenCount,
			CachedTokens:   res.UsageMetadata.CachedContentTokenCount,
		}
	}
	return chunk
}

func (g *GeminiProvider) buildRequest(contents []llm.Content, cfg *llm.GenerateConfig) *geminiRequest {
	req := &geminiRequest{
		Contents: contentsToWire(contents),
	}
	if cfg == nil {
		return req
	}
	if cfg.SystemInstruction != "" {
		req.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		tool := geminiTool{}
		for _, t := range cfg.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		req.Tools = []geminiTool{tool}
	}
	if cfg.Temperature != nil || cfg.MaxOutputTokens > 0 {
		req.GenerationConfig = &geminiGenerationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		}
	}
	req.CachedContent = cfg.CachedContent
	return req
}

func (g *GeminiProvider) post(ctx context.Context, url string, payload interface{}) (*http.Response, error) {
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := g.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, llm.CancelledError(ctx.Err())
		}
		return nil, err
	}
	return res, nil
}

// --- Interface Implementation ---

func (g *GeminiProvider) GenerateContent(ctx context.Context, model string, contents []llm.Content, cfg *llm.GenerateConfig) (*llm.ResponseChunk, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "gemini.GenerateContent")
	span.SetAttributes(attribute.String("llm.model", model))
	defer span.End()

	url := fmt.Sprintf("%s/models/%s:generateContent", g.BaseURL, model)
	res, err := g.post(ctx, url, g.buildRequest(contents, cfg))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, llm.CancelledError(ctx.Err())
		}
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var geminiRes geminiResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	return normalizeChunk(&geminiRes), nil
}

func (g *GeminiProvider) StreamGenerateContent(ctx context.Context, model string, contents []llm.Content, cfg *llm.GenerateConfig) (<-chan llm.StreamEvent, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "gemini.StreamGenerateContent")
	span.SetAttributes(attribute.String("llm.model", model))

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", g.BaseURL, model)
	res, err := g.post(ctx, url, g.buildRequest(contents, cfg))
	if err != nil {
		span.End()
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		resBody, _ := io.ReadAll(res.Body)
		res.Body.Close()
		span.End()
		return nil, fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	events := make(chan llm.StreamEvent)
	go func() {
		defer close(events)
		defer span.End()
		defer res.Body.Close()

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				events <- llm.StreamEvent{Err: llm.CancelledError(ctx.Err())}
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				continue
			}
			var geminiRes geminiResponse
			if err := json.Unmarshal([]byte(data), &geminiRes); err != nil {
				events <- llm.StreamEvent{Err: fmt.Errorf("failed to decode stream chunk: %w", err)}
				return
			}
			events <- llm.StreamEvent{Chunk: normalizeChunk(&geminiRes)}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				events <- llm.StreamEvent{Err: llm.CancelledError(ctx.Err())}
				return
			}
			events <- llm.StreamEvent{Err: fmt.Errorf("stream read error: %w", err)}
		}
	}()

	return events, nil
}

func (g *GeminiProvider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	url := fmt.Sprintf("%s/models?pageSize=100", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", g.APIKey)

	res, err := g.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, llm.CancelledError(ctx.Err())
		}
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var list geminiModelList
	if err := json.Unmarshal(resBody, &list); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	models := make([]llm.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, llm.ModelInfo{
			Name:             strings.TrimPrefix(m.Name, "models/"),
			DisplayName:      m.DisplayName,
			InputTokenLimit:  m.InputTokenLimit,
			OutputTokenLimit: m.OutputTokenLimit,
		})
	}
	return models, nil
}

func (g *GeminiProvider) SupportsCaching() bool {
	return true
}
