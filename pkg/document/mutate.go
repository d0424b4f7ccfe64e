package document

import (
	"fmt"
	"strconv"
	"strings"
)

// headerSpans locates the block's own header submatches: index pairs for the
// whole header, the numeral capture and the question text capture.
func headerSpans(blockMarkup string) []int {
	return headerRe.FindStringSubmatchIndex(blockMarkup)
}

// UpdateQuestionField rewrites only the minimal markup span for one field of a
// block and returns the updated block. The search is a targeted escaped-literal
// lookup within FullMarkup; when the field has no existing occurrence it
// returns ErrFieldNotFound and the caller falls back to full_question.
func UpdateQuestionField(q ParsedQuestion, field, newText string) (ParsedQuestion, error) {
	updated := q

	switch field {
	case FieldFullQuestion:
		updated.FullMarkup = newText
		reparsed := ParseQuestions(newText)
		if len(reparsed.Questions) == 1 {
			block := reparsed.Questions[0]
			updated.Number = block.Number
			updated.QuestionText = block.QuestionText
			updated.AnswerText = block.AnswerText
			updated.Reference = block.Reference
			updated.Choices = block.Choices
		}
		return updated, nil

	case FieldQuestion:
		idx := headerSpans(q.FullMarkup)
		if idx == nil {
			return q, ErrFieldNotFound
		}
		// idx[4]:idx[5] is the question text inside the emphasized header.
		updated.FullMarkup = q.FullMarkup[:idx[4]] + newText + q.FullMarkup[idx[5]:]
		updated.QuestionText = cleanText(newText)
		return updated, nil

	case FieldAnswer:
		return replaceLiteralAfterHeader(q, q.AnswerText, newText, func(p *ParsedQuestion, text string) {
			p.AnswerText = cleanText(text)
		})

	case FieldReference:
		return replaceLiteralAfterHeader(q, q.Reference, newText, func(p *ParsedQuestion, text string) {
			p.Reference = cleanText(text)
		})

	default:
		return q, fmt.Errorf("document: unknown field %q", field)
	}
}

// replaceLiteralAfterHeader swaps the first literal occurrence of oldText in
// the block body (after the header span, so header text is never touched).
func replaceLiteralAfterHeader(q ParsedQuestion, oldText, newText string, assign func(*ParsedQuestion, string)) (ParsedQuestion, error) {
	if oldText == "" {
		return q, ErrFieldNotFound
	}
	idx := headerSpans(q.FullMarkup)
	bodyStart := 0
	if idx != nil {
		bodyStart = idx[1]
	}
	rel := strings.Index(q.FullMarkup[bodyStart:], oldText)
	if rel < 0 {
		return q, ErrFieldNotFound
	}
	at := bodyStart + rel

	updated := q
	updated.FullMarkup = q.FullMarkup[:at] + newText + q.FullMarkup[at+len(oldText):]
	assign(&updated, newText)
	return updated, nil
}

// RenumberQuestions reassigns sequential numbers 1..N, rewriting only the
// numeral in each block's header. Non-header content is untouched.
func RenumberQuestions(questions []ParsedQuestion) []ParsedQuestion {
	renumbered := make([]ParsedQuestion, len(questions))
	for i, q := range questions {
		want := i + 1
		renumbered[i] = q
		renumbered[i].Number = want
		if q.Number == want {
			continue
		}
		idx := headerSpans(q.FullMarkup)
		if idx == nil {
			continue
		}
		// idx[2]:idx[3] is the numeral capture.
		renumbered[i].FullMarkup = q.FullMarkup[:idx[2]] + strconv.Itoa(want) + q.FullMarkup[idx[3]:]
	}
	return renumbered
}

// RebuildDocument reassembles preamble + blocks + postamble. With zero parsed
// blocks rebuilding is a no-op returning the original: callers must detect
// this and use full_replace instead.
func RebuildDocument(original string, result ParseResult, updated []ParsedQuestion) string {
	if len(result.Questions) == 0 {
		return original
	}

	var sb strings.Builder
	sb.WriteString(result.Preamble)
	for _, q := range updated {
		sb.WriteString(q.FullMarkup)
	}
	sb.WriteString(result.Postamble)
	return sb.String()
}
