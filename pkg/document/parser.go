package document

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// A question header is a numbered, emphasized line: a <p> or heading whose
// emphasized text starts with a numeral followed by ':', '.' or ')'.
var headerRe = regexp.MustCompile(`(?is)<(?:p|h[1-6])[^>]*>\s*<(?:strong|b)[^>]*>\s*(\d+)\s*[:.)]\s*(.*?)</(?:strong|b)>`)

// Per-block field patterns, tried against the markup after the header.
var (
	answerParagraphRe = regexp.MustCompile(`(?is)<p[^>]*>\s*<(?:strong|b)[^>]*>(.*?)</(?:strong|b)>\s*</p>`)
	answerListItemRe  = regexp.MustCompile(`(?is)<li[^>]*>\s*<(?:strong|b)[^>]*>(.*?)</(?:strong|b)>`)
	answerLabeledRe   = regexp.MustCompile(`(?is)<p[^>]*>\s*Answer:\s*(.*?)</p>`)
	referenceRe       = regexp.MustCompile(`(?is)<(?:em|i)[^>]*>\s*Reference:\s*(.*?)</(?:em|i)>`)
	listItemRe        = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	tagRe             = regexp.MustCompile(`<[^>]+>`)
)

// ParseQuestions scans the markup for question headers and slices it into
// ordered blocks. A block spans from its header to the start of the next
// header (or end of document); everything before the first header is the
// preamble, everything after the last block is the postamble.
func ParseQuestions(markup string) ParseResult {
	matches := headerRe.FindAllStringSubmatchIndex(markup, -1)
	if len(matches) == 0 {
		return ParseResult{Preamble: markup}
	}

	result := ParseResult{
		Preamble: markup[:matches[0][0]],
	}

	for i, m := range matches {
		start := m[0]
		end := len(markup)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		block := markup[start:end]

		number, _ := strconv.Atoi(markup[m[2]:m[3]])
		question := ParsedQuestion{
			Number:       number,
			QuestionText: cleanText(markup[m[4]:m[5]]),
			FullMarkup:   block,
			StartOffset:  start,
			EndOffset:    end,
		}

		// Field extraction only looks at markup after the header span.
		body := block[m[1]-start:]
		question.AnswerText = extractAnswer(body)
		if ref := referenceRe.FindStringSubmatch(body); ref != nil {
			question.Reference = cleanText(ref[1])
		}
		for _, li := range listItemRe.FindAllStringSubmatch(body, -1) {
			question.Choices = append(question.Choices, cleanText(li[1]))
		}

		result.Questions = append(result.Questions, question)
	}

	result.Postamble = "" // the last block runs to end of document
	return result
}

// extractAnswer finds the answer within a block body. Strategies are tried in
// order and the first one that matches wins: emphasized paragraph, emphasized
// list item, labeled "Answer:" paragraph.
func extractAnswer(body string) string {
	if m := answerParagraphRe.FindStringSubmatch(body); m != nil {
		return cleanText(m[1])
	}
	if m := answerListItemRe.FindStringSubmatch(body); m != nil {
		return cleanText(m[1])
	}
	if m := answerLabeledRe.FindStringSubmatch(body); m != nil {
		return cleanText(m[1])
	}
	return ""
}

// cleanText strips tags, decodes entities and trims whitespace.
func cleanText(markup string) string {
	text := tagRe.ReplaceAllString(markup, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

// Summary renders a compact textual overview of the parsed document for the
// model's own planning ("N questions: ...").
func Summary(result ParseResult) string {
	if len(result.Questions) == 0 {
		return "0 questions: document has no numbered question blocks"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d questions:", len(result.Questions))
	for _, q := range result.Questions {
		text := q.QuestionText
		if len(text) > 60 {
			text = text[:60] + "..."
		}
		state := "unanswered"
		if q.AnswerText != "" {
			state = "answered"
		}
		fmt.Fprintf(&sb, "\n%d) %s [%s]", q.Number, text, state)
	}
	return sb.String()
}
