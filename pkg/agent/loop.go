package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"qa-guru-be/pkg/budget"
	"qa-guru-be/pkg/document"
	"qa-guru-be/pkg/llm"
	"qa-guru-be/pkg/prompt"
	"qa-guru-be/pkg/promptcache"
	"qa-guru-be/pkg/store"
)

// Turn event types published to the sink while a turn runs.
const (
	EventChunk  = "chunk"  // incremental model text
	EventTool   = "tool"   // an edit was applied
	EventStatus = "status" // retry and recovery notices
)

// TurnEvent is one live update emitted while a turn is in flight.
type TurnEvent struct {
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
	Text      string `json:"text"`
}

// EventSink receives live turn output. Implementations must not block; the
// loop publishes from its streaming hot path.
type EventSink interface {
	Publish(event TurnEvent)
}

// Config tunes one loop instance.
type Config struct {
	Model           string
	MaxRoundTrips   int
	Temperature     *float64
	MaxOutputTokens int
}

// DefaultMaxRoundTrips bounds tool round-trips within one user turn.
const DefaultMaxRoundTrips = 6

// TurnInput is everything one user turn needs. The document markup arrives
// fresh from the host every turn; the loop never stores it between turns.
type TurnInput struct {
	Session        *store.Session
	DocumentMarkup string
	Message        string
	Images         []store.Image
	Selection      *prompt.Selection
	Templates      []prompt.Template
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Reply            string        `json:"reply"`
	DocumentMarkup   string        `json:"document_markup"`
	Changed          bool          `json:"changed"`
	Scroll           *ScrollHint   `json:"scroll,omitempty"`
	RoundTrips       int           `json:"round_trips"`
	StepLimitReached bool          `json:"step_limit_reached"`
	Budget           budget.Budget `json:"budget"`
}

// Loop drives one conversation turn end to end: budgeting, prompt assembly,
// streaming, tool handling and history bookkeeping.
type Loop struct {
	provider llm.Provider
	editor   *Editor
	budget   *budget.Manager
	cache    *promptcache.Service
	sink     EventSink
	logger   *log.Logger
	cfg      Config
}

// NewLoop creates an agent loop. cache and sink may be nil.
func NewLoop(provider llm.Provider, editor *Editor, budgetMgr *budget.Manager, cache *promptcache.Service, sink EventSink, logger *log.Logger, cfg Config) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxRoundTrips <= 0 {
		cfg.MaxRoundTrips = DefaultMaxRoundTrips
	}
	return &Loop{
		provider: provider,
		editor:   editor,
		budget:   budgetMgr,
		cache:    cache,
		sink:     sink,
		logger:   logger,
		cfg:      cfg,
	}
}

// RunTurn executes one full user turn. On success the session history gains
// the user message and the final model reply. On failure, including
// cancellation, the history is left untouched so the host can retry the same
// turn cleanly.
func (l *Loop) RunTurn(ctx context.Context, input TurnInput) (*TurnResult, error) {
	states := NewStateManager(l.logger)
	session := input.Session

	docs := budget.TruncateSourceDocuments(session.Attachments, l.budget.MaxSourceTokens)
	builder := prompt.NewBuilder(docs, input.Selection, input.Templates)
	system := builder.Build()
	tools := prompt.ToolDecls()

	history := l.budget.CompactHistory(session.History)
	turnBudget := l.budget.Build(ctx, system, docs, input.DocumentMarkup, history, input.Message)
	l.logger.Printf("[PHASE] turn start session=%s tokens=%d (%s)", session.ID, turnBudget.Total, turnBudget.Recommendation)

	genCfg := &llm.GenerateConfig{
		SystemInstruction: system,
		Tools:             tools,
		Temperature:       l.cfg.Temperature,
		MaxOutputTokens:   l.cfg.MaxOutputTokens,
	}
	cachedRemainder := l.applyCache(ctx, builder, genCfg)

	baseContents := historyContents(history)
	turnContents := []llm.Content{userTurnContent(input, docs, cachedRemainder)}

	result := &TurnResult{
		DocumentMarkup: input.DocumentMarkup,
		Budget:         turnBudget,
	}
	policy := newRetryPolicy(l.logger)
	var thinking string

	for {
		if result.RoundTrips >= l.cfg.MaxRoundTrips {
			result.StepLimitReached = true
			l.logger.Printf("[PHASE] step limit reached session=%s after %d round trips", session.ID, result.RoundTrips)
			break
		}
		result.RoundTrips++

		states.Transition(StateRequesting)
		contents := append(append([]llm.Content(nil), baseContents...), turnContents...)

		chunk, err := l.streamOnce(ctx, session.ID, contents, genCfg, states)
		if err != nil {
			decision := policy.decide(err)
			if decision.retry {
				l.publish(TurnEvent{SessionID: session.ID, Type: EventStatus, Text: decision.classified.UserMessage})
				if decision.pruneHistory {
					baseContents = l.shrinkHistory(session.History)
				}
				result.RoundTrips--
				if waitErr := policy.wait(ctx, decision); waitErr != nil {
					states.Transition(StateFailed)
					return nil, waitErr
				}
				continue
			}
			states.Transition(StateFailed)
			if llm.IsCancelled(err) {
				return nil, err
			}
			return nil, decision.classified
		}

		thinking += chunk.Thinking

		if len(chunk.FunctionCalls) == 0 {
			result.Reply += chunk.Text
			break
		}

		// Tool round: record the model turn, apply each call in order, and
		// feed the responses back as the next synthetic user turn.
		turnContents = append(turnContents, modelContent(chunk))

		states.Transition(StateApplyingEdit)
		responses := llm.Content{Role: llm.RoleUser}
		for _, call := range chunk.FunctionCalls {
			resp, err := l.handleCall(ctx, session.ID, call, input.Selection, result)
			if err != nil {
				states.Transition(StateFailed)
				return nil, err
			}
			responses.Parts = append(responses.Parts, llm.Part{
				FunctionResponse: &llm.FunctionResponse{Name: call.Name, Response: resp},
			})
		}
		turnContents = append(turnContents, responses)
	}

	if result.StepLimitReached {
		if result.Reply != "" {
			result.Reply += "\n\n"
		}
		result.Reply += "I reached the edit step limit for this turn. The edits applied so far are kept; ask me to continue if more changes are needed."
	}

	session.History = append(session.History,
		store.ChatMessage{Role: store.ChatMessageRoleUser, Text: input.Message, Images: input.Images},
		store.ChatMessage{Role: store.ChatMessageRoleModel, Text: result.Reply, Thinking: thinking},
	)
	session.LastQuery = input.Message

	states.Transition(StateDone)
	return result, nil
}

// streamOnce performs one streaming call and drains it into a single
// aggregated chunk, publishing text increments as they arrive.
func (l *Loop) streamOnce(ctx context.Context, sessionID string, contents []llm.Content, cfg *llm.GenerateConfig, states *StateManager) (*llm.ResponseChunk, error) {
	events, err := l.provider.StreamGenerateContent(ctx, l.cfg.Model, contents, cfg)
	if err != nil {
		return nil, err
	}
	states.Transition(StateStreaming)

	agg := &llm.ResponseChunk{}
	for ev := range events {
		if ev.Err != nil {
			return nil, ev.Err
		}
		c := ev.Chunk
		if c.Text != "" {
			agg.Text += c.Text
			l.publish(TurnEvent{SessionID: sessionID, Type: EventChunk, Text: c.Text})
		}
		agg.Thinking += c.Thinking
		agg.FunctionCalls = append(agg.FunctionCalls, c.FunctionCalls...)
		if c.Usage != nil {
			agg.Usage = c.Usage
		}
		if c.FinishReason != "" {
			agg.FinishReason = c.FinishReason
		}
	}
	return agg, nil
}

// handleCall executes one tool call against the current document state. Tool
// failures are fed back to the model as error responses rather than failing
// the turn; only cancellation aborts.
func (l *Loop) handleCall(ctx context.Context, sessionID string, call llm.FunctionCall, selection *prompt.Selection, result *TurnResult) (map[string]interface{}, error) {
	switch call.Name {
	case "edit_document":
		op, err := ParseEditOperation(call.Args)
		if err != nil {
			return toolError(err), nil
		}
		if selection != nil {
			op.SelectionMarkup = selection.Markup
		}
		applied, err := l.editor.Apply(ctx, result.DocumentMarkup, op)
		if err != nil {
			if llm.IsCancelled(err) {
				return nil, err
			}
			l.logger.Printf("[PHASE] edit failed session=%s type=%s: %v", sessionID, op.Type, err)
			return toolError(err), nil
		}
		result.DocumentMarkup = applied.Markup
		result.Changed = true
		result.Scroll = applied.Scroll
		l.publish(TurnEvent{SessionID: sessionID, Type: EventTool, Text: applied.Summary})
		return map[string]interface{}{"status": "ok", "message": applied.Summary}, nil

	case "read_document":
		summary := document.Summary(document.ParseQuestions(result.DocumentMarkup))
		return map[string]interface{}{"status": "ok", "document_summary": summary}, nil

	default:
		return toolError(fmt.Errorf("unknown tool %q", call.Name)), nil
	}
}

// applyCache swaps the static prompt prefix for a server-side cache reference
// when the backend supports it, returning the per-turn remainder of the
// system instruction for the caller to carry in the user turn. Cache failures
// degrade to an uncached request.
func (l *Loop) applyCache(ctx context.Context, builder *prompt.Builder, cfg *llm.GenerateConfig) string {
	if l.cache == nil || !l.provider.SupportsCaching() {
		return ""
	}
	static := builder.StaticPrefix()
	entry, err := l.cache.Ensure(ctx, l.cfg.Model, static, nil, cfg.Tools)
	if err != nil {
		l.logger.Printf("[CACHE] falling back to uncached request: %v", err)
		return ""
	}
	cfg.CachedContent = entry.ID
	// The API rejects a request that carries tools or a system instruction
	// next to cachedContent; both live inside the cached entry. The per-turn
	// remainder rides with the user turn instead.
	remainder := strings.TrimPrefix(cfg.SystemInstruction, static)
	cfg.SystemInstruction = ""
	cfg.Tools = nil
	return remainder
}

// shrinkHistory rebuilds the history contents keeping only the last few turns,
// used when the provider reports a context overflow.
func (l *Loop) shrinkHistory(messages []store.ChatMessage) []llm.Content {
	tight := *l.budget
	tight.MaxHistoryTurns = 3
	compacted := tight.CompactHistory(messages)
	l.logger.Printf("[PHASE] context overflow, history shrunk to %d messages", len(compacted))
	return historyContents(compacted)
}

func (l *Loop) publish(event TurnEvent) {
	if l.sink != nil {
		l.sink.Publish(event)
	}
}

func historyContents(messages []store.ChatMessage) []llm.Content {
	out := make([]llm.Content, 0, len(messages))
	for _, msg := range messages {
		role := llm.RoleUser
		if msg.Role == store.ChatMessageRoleModel {
			role = llm.RoleModel
		}
		content := llm.Content{Role: role}
		if msg.Text != "" {
			content.Parts = append(content.Parts, llm.Part{Text: msg.Text})
		}
		for _, img := range msg.Images {
			content.Parts = append(content.Parts, llm.Part{
				InlineData: &llm.Blob{MIMEType: img.MIMEType, Data: img.Data},
			})
		}
		out = append(out, content)
	}
	return out
}

// userTurnContent assembles the live user turn: the current document state,
// any native attachments, attached images and the user message. instructions
// holds per-turn system text displaced by an active prompt cache.
func userTurnContent(input TurnInput, docs []store.DocumentAttachment, instructions string) llm.Content {
	content := llm.Content{Role: llm.RoleUser}
	for _, doc := range docs {
		if doc.Native {
			content.Parts = append(content.Parts, llm.Part{
				InlineData: &llm.Blob{MIMEType: doc.MIMEType, Data: doc.Data},
			})
		}
	}
	for _, img := range input.Images {
		content.Parts = append(content.Parts, llm.Part{
			InlineData: &llm.Blob{MIMEType: img.MIMEType, Data: img.Data},
		})
	}
	text := fmt.Sprintf("<current_document>\n%s\n</current_document>\n\n%s", input.DocumentMarkup, input.Message)
	if instructions != "" {
		text = strings.TrimSpace(instructions) + "\n\n" + text
	}
	content.Parts = append(content.Parts, llm.Part{Text: text})
	return content
}

// modelContent converts an aggregated response chunk back into a history
// content for the next round trip.
func modelContent(chunk *llm.ResponseChunk) llm.Content {
	content := llm.Content{Role: llm.RoleModel}
	if chunk.Text != "" {
		content.Parts = append(content.Parts, llm.Part{Text: chunk.Text})
	}
	for i := range chunk.FunctionCalls {
		content.Parts = append(content.Parts, llm.Part{FunctionCall: &chunk.FunctionCalls[i]})
	}
	return content
}

func toolError(err error) map[string]interface{} {
	return map[string]interface{}{"status": "error", "message": err.Error()}
}
