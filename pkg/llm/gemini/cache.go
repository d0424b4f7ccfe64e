package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"qa-guru-be/pkg/llm"
)

// cachedContents API payloads. The static prompt prefix (system instruction,
// reference documents, tool schema) is uploaded once and referenced by name
// in later generate calls.

type cachedContentRequest struct {
	Model             string          `json:"model"`
	Contents          []geminiContent `json:"contents,omitempty"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
	TTL               string          `json:"ttl,omitempty"`
}

type cachedContentResponse struct {
	Name       string `json:"name"`
	CreateTime string `json:"createTime"`
	ExpireTime string `json:"expireTime"`
}

// CreateCachedContent uploads the static prompt prefix and returns the
// server-side cache entry name.
func (g *GeminiProvider) CreateCachedContent(ctx context.Context, model, systemInstruction string, contents []llm.Content, tools []llm.ToolDecl, ttl time.Duration) (string, error) {
	payload := cachedContentRequest{
		Model:    "models/" + model,
		Contents: contentsToWire(contents),
		TTL:      fmt.Sprintf("%ds", int(ttl.Seconds())),
	}
	if systemInstruction != "" {
		payload.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemInstruction}},
		}
	}
	if len(tools) > 0 {
		tool := geminiTool{}
		for _, t := range tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		payload.Tools = []geminiTool{tool}
	}

	res, err := g.post(ctx, g.BaseURL+"/cachedContents", payload)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var cached cachedContentResponse
	if err := json.Unmarshal(resBody, &cached); err != nil {
		return "", fmt.Errorf("failed to decode cached content response: %w", err)
	}
	return cached.Name, nil
}

// DeleteCachedContent removes a server-side cache entry by name.
func (g *GeminiProvider) DeleteCachedContent(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", g.BaseURL+"/"+name, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", g.APIKey)

	res, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNotFound {
		resBody, _ := io.ReadAll(res.Body)
		return fmt.Errorf(
			"status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}
	return nil
}
