package agent

import (
	"fmt"
	"strconv"
)

// EditType selects the edit variant. Exactly one variant applies per call.
type EditType string

const (
	EditQuestion   EditType = "edit_question"
	AddQuestions   EditType = "add_questions"
	DeleteQuestion EditType = "delete_question"
	EditSection    EditType = "edit_section"
	SnippetReplace EditType = "snippet_replace"
	FullReplace    EditType = "full_replace"
)

// EditOperation is the decoded edit_document tool-call payload.
type EditOperation struct {
	Type             EditType
	QuestionNumber   int
	Field            string
	NewContent       string
	Position         string
	FullDocumentHTML string
	SnippetToReplace string
	ReplacementHTML  string
	Instruction      string

	// SelectionMarkup is the host editor's current selection. It is set by
	// the caller, never decoded from tool args, and scopes edit_section
	// matching to the selected region first.
	SelectionMarkup string
}

// ParseEditOperation decodes raw tool-call args. An unknown or omitted
// edit_type is inferred from which fields are populated, for compatibility
// with models that skip the discriminator.
func ParseEditOperation(args map[string]interface{}) (EditOperation, error) {
	op := EditOperation{
		Type:             EditType(argString(args, "edit_type")),
		QuestionNumber:   argInt(args, "question_number"),
		Field:            argString(args, "field"),
		NewContent:       argString(args, "new_content"),
		Position:         argString(args, "position"),
		FullDocumentHTML: argString(args, "full_document_html"),
		SnippetToReplace: argString(args, "html_snippet_to_replace"),
		ReplacementHTML:  argString(args, "replacement_html"),
		Instruction:      argString(args, "instruction"),
	}

	switch op.Type {
	case EditQuestion, AddQuestions, DeleteQuestion, EditSection, SnippetReplace, FullReplace:
		return op, nil
	}

	// Inference order mirrors variant specificity: the most explicit
	// payload shape wins.
	switch {
	case op.FullDocumentHTML != "":
		op.Type = FullReplace
	case op.SnippetToReplace != "" && op.ReplacementHTML != "":
		op.Type = SnippetReplace
	case op.QuestionNumber > 0 && op.Field != "" && op.NewContent != "":
		op.Type = EditQuestion
	case op.QuestionNumber > 0 && op.NewContent == "":
		op.Type = DeleteQuestion
	case op.NewContent != "":
		op.Type = AddQuestions
	default:
		return op, fmt.Errorf("cannot infer edit_type: no recognizable fields populated")
	}
	return op, nil
}

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// argInt tolerates the shapes JSON decoding produces for numbers, plus
// numeric strings some models emit.
func argInt(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
