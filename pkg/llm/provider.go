package llm

import (
	"context"
	"strings"
)

// Message roles shared by every backend.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Blob is inline binary data (images, native document attachments).
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is one piece of message content. Exactly one of Text, InlineData,
// FunctionCall or FunctionResponse is set. Thought marks provider reasoning
// parts that must never be surfaced as answer text.
type Part struct {
	Text             string
	InlineData       *Blob
	FunctionCall     *FunctionCall
	FunctionResponse *FunctionResponse
	Thought          bool
}

// Content is a single message in provider wire terms: a role plus ordered parts.
type Content struct {
	Role  string
	Parts []Part
}

// UserText builds a plain user message.
func UserText(text string) Content {
	return Content{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// ModelText builds a plain model message.
func ModelText(text string) Content {
	return Content{Role: RoleModel, Parts: []Part{{Text: text}}}
}

// FunctionCall is a structured tool invocation requested by the model.
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// FunctionResponse is a tool result fed back to the model as the next
// synthetic turn.
type FunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// UsageMetadata reports token accounting for a response.
type UsageMetadata struct {
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
	CachedTokens   int
}

// ResponseChunk is the canonical response shape every backend normalizes into.
// For streaming calls each chunk is a partial; for non-streaming calls there is
// exactly one chunk carrying the whole response.
type ResponseChunk struct {
	Text          string
	Thinking      string
	FunctionCalls []FunctionCall
	Usage         *UsageMetadata
	FinishReason  string
}

// StreamEvent carries either a chunk or a terminal error on a response stream.
// The channel is closed once the stream is drained or fails.
type StreamEvent struct {
	Chunk *ResponseChunk
	Err   error
}

// ToolDecl describes one callable tool to the provider.
// Parameters is a JSON-schema object in map form.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// GenerateConfig holds per-request generation settings.
type GenerateConfig struct {
	SystemInstruction string
	Tools             []ToolDecl
	Temperature       *float64
	MaxOutputTokens   int

	// CachedContent references a server-side cache entry holding the static
	// prompt prefix. Ignored by backends that report SupportsCaching() false.
	CachedContent string
}

// ModelInfo describes one model exposed by a backend.
type ModelInfo struct {
	Name             string
	DisplayName      string
	InputTokenLimit  int
	OutputTokenLimit int
}

// Provider defines the contract for any LLM backend. All implementations must
// yield structurally identical ResponseChunk values regardless of wire protocol.
type Provider interface {
	// GenerateContent performs a non-streaming call and returns the full response.
	GenerateContent(ctx context.Context, model string, contents []Content, cfg *GenerateConfig) (*ResponseChunk, error)

	// StreamGenerateContent performs a streaming call. Chunks arrive on the
	// returned channel; the channel is closed when the stream ends.
	StreamGenerateContent(ctx context.Context, model string, contents []Content, cfg *GenerateConfig) (<-chan StreamEvent, error)

	// ListModels enumerates models available on this backend.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// SupportsCaching reports whether the backend can host server-side
	// cached prompt prefixes.
	SupportsCaching() bool
}

// Temperature is a convenience for building GenerateConfig literals.
func Temperature(t float64) *float64 {
	return &t
}

// JoinText concatenates the non-thought text parts of a content, the same way
// chunk text is assembled at the transport boundary.
func JoinText(c Content) string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Thought || p.InlineData != nil {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
