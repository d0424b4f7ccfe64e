package proxy

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
)

// ProxyProvider speaks to an LLM relay service that fronts the real provider.
// The relay has its own JSON envelope and SSE framing; everything is
// normalized into the canonical chunk shape at this boundary, so callers
// cannot tell it apart from the direct backend.
type ProxyProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// Ensure ProxyProvider implements Provider
var _ llm.Provider = &ProxyProvider{}

func NewProxyProvider(baseURL, apiKey string) *ProxyProvider {
	return &ProxyProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- Relay wire structs (Internal to this package) ---

type relayPart struct {
	Type      string                 `json:"type"` // "text" | "blob" | "tool_call" | "tool_result"
	Text      string                 `json:"text,omitempty"`
	MimeType  string                 `json:"mime_type,omitempty"`
	Data      string                 `json:"data,omitempty"` // base64
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Thought   bool                   `json:"thought,omitempty"`
}

type relayMessage struct {
	Role  string      `json:"role"`
	Parts []relayPart `json:"parts"`
}

type relayTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty"`
}

type relayRequest struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []relayMessage `json:"messages"`
	Tools       []relayTool    `json:"tools,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stream      bool           `json:"stream"`
}

type relayToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type relayUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type relayReply struct {
	Delta     string          `json:"delta,omitempty"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ToolCalls []relayToolCall `json:"tool_calls,omitempty"`
	Finish    string          `json:"finish,omitempty"`
	Usage     *relayUsage     `json:"usage,omitempty"`
}

type relayResponse struct {
	Reply *relayReply `json:"reply"`
}

type relayError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type relayModel struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	ContextWindow int    `json:"context_window"`
	MaxOutput     int    `json:"max_output"`
}

type relayModelList struct {
	Models []relayModel `json:"models"`
}

// --- Wire mapping ---

func messagesToWire(contents []llm.Content) []relayMessage {
	msgs := make([]relayMessage, 0, len(contents))
	for _, c := range contents {
		m := relayMessage{Role: c.Role}
		for _, p := range c.Parts {
			switch {
			case p.InlineData != nil:
				m.Parts = append(m.Parts, relayPart{
					Type:     "blob",
					MimeType: p.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
				})
			case p.FunctionCall != nil:
				m.Parts = append(m.Parts, relayPart{
					Type:      "tool_call",
					Name:      p.FunctionCall.Name,
					Arguments: p.FunctionCall.Args,
				})
			case p.FunctionResponse != nil:
				m.Parts = append(m.Parts, relayPart{
					Type:   "tool_result",
					Name:   p.FunctionResponse.Name,
					Result: p.FunctionResponse.Response,
				})
			default:
				m.Parts = append(m.Parts, relayPart{Type: "text", Text: p.Text, Thought: p.Thought})
			}
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// normalizeReply maps one relay reply into the canonical chunk shape.
func normalizeReply(r *relayReply) *llm.ResponseChunk {
	chunk := &llm.ResponseChunk{FinishReason: r.Finish, Thinking: r.Thinking}
	if r.Delta != "" {
		chunk.Text = r.Delta
	} else {
		chunk.Text = r.Text
	}
	for _, tc := range r.ToolCalls {
		chunk.FunctionCalls = append(chunk.FunctionCalls, llm.FunctionCall{
			Name: tc.Name,
			Args: tc.Arguments,
		})
	}
	if r.Usage != nil {
		chunk.Usage = &llm.UsageMetadata{
			PromptTokens:   r.Usage.InputTokens,
			ResponseTokens: r.Usage.OutputTokens,
			TotalTokens:    r.Usage.TotalTokens,
		}
	}
	return chunk
}

func (p *ProxyProvider) buildRequest(model string, contents []llm.Content, cfg *llm.GenerateConfig, stream bool) *relayRequest {
	req := &relayRequest{
		Model:    model,
		Messages: messagesToWire(contents),
		Stream:   stream,
	}
	if cfg != nil {
		req.System = cfg.SystemInstruction
		req.Temperature = cfg.Temperature
		req.MaxTokens = cfg.MaxOutputTokens
		for _, t := range cfg.Tools {
			req.Tools = append(req.Tools, relayTool{
				Name:        t.Name,
				Description: t.Description,
				Schema:      t.Parameters,
			})
		}
	}
	return req
}

func (p *ProxyProvider) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.BaseURL+path, bytes.NewBuffer(payloadJson))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, llm.CancelledError(ctx.Err())
		}
		return nil, err
	}
	return res, nil
}

// --- Interface Implementation ---

func (p *ProxyProvider) GenerateContent(ctx context.Context, model string, contents []llm.Content, cfg *llm.GenerateConfig) (*llm.ResponseChunk, error) {
	res, err := p.post(ctx, "/v1/chat", p.buildRequest(model, contents, cfg, false))
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
			"relay status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var relayRes relayResponse
	if err := json.Unmarshal(resBody, &relayRes); err != nil {
		return nil, fmt.Errorf("failed to decode relay response: %w", err)
	}
	if relayRes.Reply == nil {
		return nil, fmt.Errorf("relay response missing reply")
	}
	return normalizeReply(relayRes.Reply), nil
}

func (p *ProxyProvider) StreamGenerateContent(ctx context.Context, model string, contents []llm.Content, cfg *llm.GenerateConfig) (<-chan llm.StreamEvent, error) {
	res, err := p.post(ctx, "/v1/chat", p.buildRequest(model, contents, cfg, true))
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		resBody, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf(
			"relay status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	events := make(chan llm.StreamEvent)
	go func() {
		defer close(events)
		defer res.Body.Close()

		// Relay framing: "event: chunk|done|error" followed by a "data:" line.
		var eventType string
		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				events <- llm.StreamEvent{Err: llm.CancelledError(ctx.Err())}
				return
			}
			line := strings.TrimSpace(scanner.Text())
			switch {
			case strings.HasPrefix(line, "event:"):
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				switch eventType {
				case "error":
					var relayErr relayError
					if err := json.Unmarshal([]byte(data), &relayErr); err != nil {
						events <- llm.StreamEvent{Err: fmt.Errorf("relay stream error: %s", data)}
						return
					}
					events <- llm.StreamEvent{Err: fmt.Errorf("relay stream error %d: %s", relayErr.Code, relayErr.Message)}
					return
				case "done":
					return
				default: // "chunk" or unspecified
					var reply relayReply
					if err := json.Unmarshal([]byte(data), &reply); err != nil {
						events <- llm.StreamEvent{Err: fmt.Errorf("failed to decode relay chunk: %w", err)}
						return
					}
					events <- llm.StreamEvent{Chunk: normalizeReply(&reply)}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				events <- llm.StreamEvent{Err: llm.CancelledError(ctx.Err())}
				return
			}
			events <- llm.StreamEvent{Err: fmt.Errorf("relay stream read error: %w", err)}
		}
	}()

	return events, nil
}

func (p *ProxyProvider) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.BaseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	res, err := p.Client.Do(req)
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
			"relay status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var list relayModelList
	if err := json.Unmarshal(resBody, &list); err != nil {
		return nil, fmt.Errorf("failed to decode relay model list: %w", err)
	}

	models := make([]llm.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, llm.ModelInfo{
			Name:             m.ID,
			DisplayName:      m.Label,
			InputTokenLimit:  m.ContextWindow,
			OutputTokenLimit: m.MaxOutput,
		})
	}
	return models, nil
}

// SupportsCaching is false: the relay has no cachedContents surface, so the
// agent loop skips the prompt cache entirely for this backend.
func (p *ProxyProvider) SupportsCaching() bool {
	return false
}
