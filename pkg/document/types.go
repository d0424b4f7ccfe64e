package document

import "errors"

// ParsedQuestion is a structural view over one question block of the document.
// It is derived, not authoritative: every structural operation re-parses from
// the live markup. StartOffset/EndOffset are byte offsets into the markup the
// block was parsed from; blocks are non-overlapping and sorted by offset.
type ParsedQuestion struct {
	Number       int      `json:"number"`
	QuestionText string   `json:"question_text"`
	AnswerText   string   `json:"answer_text"`
	Choices      []string `json:"choices,omitempty"`
	Reference    string   `json:"reference,omitempty"`
	FullMarkup   string   `json:"full_markup"`
	StartOffset  int      `json:"start_offset"`
	EndOffset    int      `json:"end_offset"`
}

// ParseResult is the full structural decomposition of a document.
// Preamble + all blocks' FullMarkup + Postamble reconstructs the document
// byte-identically.
type ParseResult struct {
	Questions []ParsedQuestion `json:"questions"`
	Preamble  string           `json:"preamble"`
	Postamble string           `json:"postamble"`
}

// Editable fields accepted by UpdateQuestionField.
const (
	FieldQuestion     = "question"
	FieldAnswer       = "answer"
	FieldReference    = "reference"
	FieldFullQuestion = "full_question"
)

// ErrNoBlocks signals that a structural edit was requested on a document with
// zero parseable question blocks. Callers fall back to full_replace.
var ErrNoBlocks = errors.New("document: no parseable question blocks")

// ErrFieldNotFound signals that the targeted field has no existing occurrence
// in the block markup. Callers fall back to replacing full_question.
var ErrFieldNotFound = errors.New("document: field occurrence not found in block markup")
