package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"qa-guru-be/pkg/document"
	"qa-guru-be/pkg/matching"
)

// ScrollHint tells the hosting editor where to bring the user after an edit.
type ScrollHint struct {
	Type           string `json:"type"` // "question" | "text" | "top"
	QuestionNumber int    `json:"question_number,omitempty"`
	Text           string `json:"text,omitempty"`
}

// EditResult is one fully applied edit: the complete new document plus
// feedback for the model and the host. Edits are all-or-nothing: on error the
// input markup is untouched.
type EditResult struct {
	Markup  string
	Scroll  *ScrollHint
	Summary string
}

// Editor applies decoded edit operations to document markup.
type Editor struct {
	engine *matching.Engine
	logger *log.Logger
}

func NewEditor(engine *matching.Engine, logger *log.Logger) *Editor {
	if logger == nil {
		logger = log.Default()
	}
	return &Editor{engine: engine, logger: logger}
}

// Apply executes one edit operation against the given markup and returns the
// new markup. The input is never mutated; a failed edit returns it unchanged
// via the error path.
func (e *Editor) Apply(ctx context.Context, markup string, op EditOperation) (*EditResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch op.Type {
	case EditQuestion:
		return e.applyEditQuestion(markup, op)
	case AddQuestions:
		return e.applyAddQuestions(markup, op)
	case DeleteQuestion:
		return e.applyDeleteQuestion(markup, op)
	case EditSection, SnippetReplace:
		return e.applySnippetReplace(ctx, markup, op)
	case FullReplace:
		return e.applyFullReplace(op)
	default:
		return nil, fmt.Errorf("unknown edit type %q", op.Type)
	}
}

func (e *Editor) applyEditQuestion(markup string, op EditOperation) (*EditResult, error) {
	result := document.ParseQuestions(markup)
	if len(result.Questions) == 0 {
		return nil, fmt.Errorf("%w; resend the edit as full_replace with the complete document", document.ErrNoBlocks)
	}

	idx := questionIndex(result.Questions, op.QuestionNumber)
	if idx < 0 {
		return nil, fmt.Errorf("question %d not found; document has questions %s", op.QuestionNumber, questionNumbers(result.Questions))
	}

	updated, err := document.UpdateQuestionField(result.Questions[idx], op.Field, op.NewContent)
	if err != nil {
		return nil, fmt.Errorf("could not update %s of question %d: %w; resend with field \"full_question\" and the complete block markup", op.Field, op.QuestionNumber, err)
	}

	blocks := append([]document.ParsedQuestion(nil), result.Questions...)
	blocks[idx] = updated

	return &EditResult{
		Markup:  document.RebuildDocument(markup, result, blocks),
		Scroll:  &ScrollHint{Type: "question", QuestionNumber: op.QuestionNumber},
		Summary: fmt.Sprintf("Updated %s of question %d.", op.Field, op.QuestionNumber),
	}, nil
}

func (e *Editor) applyAddQuestions(markup string, op EditOperation) (*EditResult, error) {
	if op.NewContent == "" {
		return nil, fmt.Errorf("add_questions requires new_content")
	}

	result := document.ParseQuestions(markup)
	parsed := document.ParseQuestions(op.NewContent)

	// Structured path: the new content parses as question blocks, so insert
	// them as blocks and renumber the whole document.
	if len(parsed.Questions) > 0 && len(result.Questions) > 0 {
		idx, err := insertIndex(result.Questions, op.Position)
		if err != nil {
			return nil, err
		}
		blocks := make([]document.ParsedQuestion, 0, len(result.Questions)+len(parsed.Questions))
		blocks = append(blocks, result.Questions[:idx]...)
		blocks = append(blocks, parsed.Questions...)
		blocks = append(blocks, result.Questions[idx:]...)
		blocks = document.RenumberQuestions(blocks)

		firstNew := idx + 1
		return &EditResult{
			Markup:  document.RebuildDocument(markup, result, blocks),
			Scroll:  &ScrollHint{Type: "question", QuestionNumber: firstNew},
			Summary: fmt.Sprintf("Added %d question(s); document renumbered to %d questions.", len(parsed.Questions), len(blocks)),
		}, nil
	}

	// Raw path: content that does not parse as blocks (or a blockless
	// document) is spliced in at the position boundary. Existing blocks keep
	// their numbers: renumbering around unparsed content risks mislabeling
	// prose as questions.
	offset, err := insertOffset(markup, result.Questions, op.Position)
	if err != nil {
		return nil, err
	}
	newMarkup := markup[:offset] + op.NewContent + markup[offset:]
	e.logger.Printf("[EDIT] add_questions raw insertion at offset %d (content did not parse as blocks)", offset)

	return &EditResult{
		Markup:  newMarkup,
		Scroll:  &ScrollHint{Type: "text", Text: snippetPreview(op.NewContent)},
		Summary: "Inserted content as-is; it did not parse as numbered question blocks, so numbering was left alone.",
	}, nil
}

func (e *Editor) applyDeleteQuestion(markup string, op EditOperation) (*EditResult, error) {
	result := document.ParseQuestions(markup)
	if len(result.Questions) == 0 {
		return nil, fmt.Errorf("%w; resend the edit as full_replace with the complete document", document.ErrNoBlocks)
	}

	idx := questionIndex(result.Questions, op.QuestionNumber)
	if idx < 0 {
		return nil, fmt.Errorf("question %d not found; document has questions %s", op.QuestionNumber, questionNumbers(result.Questions))
	}

	blocks := append([]document.ParsedQuestion(nil), result.Questions[:idx]...)
	blocks = append(blocks, result.Questions[idx+1:]...)
	blocks = document.RenumberQuestions(blocks)

	return &EditResult{
		Markup:  document.RebuildDocument(markup, result, blocks),
		Scroll:  &ScrollHint{Type: "top"},
		Summary: fmt.Sprintf("Deleted question %d; %d question(s) remain, renumbered.", op.QuestionNumber, len(blocks)),
	}, nil
}

func (e *Editor) applySnippetReplace(ctx context.Context, markup string, op EditOperation) (*EditResult, error) {
	if op.SnippetToReplace == "" {
		return nil, fmt.Errorf("snippet_replace requires html_snippet_to_replace")
	}

	if op.Type == EditSection && op.SelectionMarkup != "" {
		res, ok, err := e.applyWithinSelection(ctx, markup, op)
		if err != nil {
			return nil, err
		}
		if ok {
			return res, nil
		}
	}

	res, err := e.engine.Apply(ctx, markup, op.SnippetToReplace, op.ReplacementHTML, op.Instruction)
	if err != nil {
		var matchErr *matching.MatchError
		if errors.As(err, &matchErr) {
			return nil, fmt.Errorf("%v. If the target cannot be located, resend as full_replace with the complete document", matchErr)
		}
		return nil, err
	}

	return &EditResult{
		Markup:  res.Markup,
		Scroll:  &ScrollHint{Type: "text", Text: snippetPreview(op.ReplacementHTML)},
		Summary: fmt.Sprintf("Replaced snippet (matched via %s layer).", res.Layer),
	}, nil
}

// applyWithinSelection scopes matching to the user's selected region so an
// ambiguous snippet resolves against the selection, not its first occurrence
// document-wide. A miss inside the region falls back to the whole document;
// only cancellation is fatal.
func (e *Editor) applyWithinSelection(ctx context.Context, markup string, op EditOperation) (*EditResult, bool, error) {
	start := strings.Index(markup, op.SelectionMarkup)
	if start < 0 {
		return nil, false, nil
	}
	region := markup[start : start+len(op.SelectionMarkup)]

	res, err := e.engine.Apply(ctx, region, op.SnippetToReplace, op.ReplacementHTML, op.Instruction)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		e.logger.Printf("[EDIT] no match inside the selection, retrying against the whole document: %v", err)
		return nil, false, nil
	}

	return &EditResult{
		Markup:  markup[:start] + res.Markup + markup[start+len(region):],
		Scroll:  &ScrollHint{Type: "text", Text: snippetPreview(op.ReplacementHTML)},
		Summary: fmt.Sprintf("Replaced snippet within the selection (matched via %s layer).", res.Layer),
	}, true, nil
}

func (e *Editor) applyFullReplace(op EditOperation) (*EditResult, error) {
	if op.FullDocumentHTML == "" {
		return nil, fmt.Errorf("full_replace requires full_document_html")
	}
	return &EditResult{
		Markup:  op.FullDocumentHTML,
		Scroll:  &ScrollHint{Type: "top"},
		Summary: "Replaced the entire document.",
	}, nil
}

// --- helpers ---

func questionIndex(questions []document.ParsedQuestion, number int) int {
	for i, q := range questions {
		if q.Number == number {
			return i
		}
	}
	return -1
}

func questionNumbers(questions []document.ParsedQuestion) string {
	nums := make([]string, len(questions))
	for i, q := range questions {
		nums[i] = strconv.Itoa(q.Number)
	}
	return strings.Join(nums, ", ")
}

// insertIndex resolves a position argument to a block index: "start", "end"
// (default), or a question number to insert after.
func insertIndex(questions []document.ParsedQuestion, position string) (int, error) {
	switch position {
	case "", "end":
		return len(questions), nil
	case "start":
		return 0, nil
	}
	if n, err := strconv.Atoi(position); err == nil {
		if idx := questionIndex(questions, n); idx >= 0 {
			return idx + 1, nil
		}
		return 0, fmt.Errorf("position %q: question %d not found", position, n)
	}
	return 0, fmt.Errorf("unknown position %q; use \"start\", \"end\" or a question number", position)
}

// insertOffset resolves a position to a byte offset for raw insertion.
func insertOffset(markup string, questions []document.ParsedQuestion, position string) (int, error) {
	if len(questions) == 0 {
		return len(markup), nil
	}
	idx, err := insertIndex(questions, position)
	if err != nil {
		return 0, err
	}
	if idx == 0 {
		return questions[0].StartOffset, nil
	}
	return questions[idx-1].EndOffset, nil
}

var previewTagRe = regexp.MustCompile(`<[^>]+>`)

func snippetPreview(markup string) string {
	text := strings.TrimSpace(previewTagRe.ReplaceAllString(markup, " "))
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > 60 {
		text = text[:60] + "..."
	}
	return text
}
