package matching

import (
	"strings"

	"golang.org/x/net/html"
)

// element is one markup element located at exact byte offsets in the original
// document, with the decoded text of its whole subtree. Offsets let a match be
// replaced by plain string surgery, leaving every other byte untouched.
type element struct {
	tag       string
	start     int
	end       int
	text      string
	normText  string
	container bool // holds at least one block-level child
}

var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "div": true, "table": true, "tr": true,
	"td": true, "th": true, "blockquote": true, "pre": true, "section": true,
	"article": true,
}

var voidTags = map[string]bool{
	"br": true, "hr": true, "img": true, "input": true, "meta": true, "link": true,
}

type openElement struct {
	tag         string
	start       int
	text        strings.Builder
	childBlocks int
}

// indexElements walks the markup with a tokenizer, tracking byte offsets by
// accumulating raw token lengths. Unlike a parsed tree, this preserves the
// original bytes exactly, so a winning candidate can be spliced out in place.
func indexElements(markup string) []element {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))

	var stack []*openElement
	var elements []element
	offset := 0

	closeTo := func(keep int, end int) {
		for len(stack) > keep {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if blockTags[top.tag] {
				elements = append(elements, newElement(top, end))
				if len(stack) > 0 {
					stack[len(stack)-1].childBlocks++
				}
			}
		}
	}

	for {
		tokenType := tokenizer.Next()
		raw := tokenizer.Raw()
		tokenStart := offset
		offset += len(raw)

		switch tokenType {
		case html.ErrorToken:
			// EOF (or malformed input): close whatever is still open.
			closeTo(0, tokenStart)
			return elements

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if voidTags[tag] {
				continue
			}
			stack = append(stack, &openElement{tag: tag, start: tokenStart})

		case html.TextToken:
			text := string(tokenizer.Text()) // entity-decoded
			for _, open := range stack {
				open.text.WriteString(text)
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			// Find the nearest matching open tag; ignore stray closers.
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].tag == tag {
					closeTo(i+1, tokenStart)
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					if blockTags[tag] {
						elements = append(elements, newElement(top, offset))
						if len(stack) > 0 {
							stack[len(stack)-1].childBlocks++
						}
					}
					break
				}
			}
		}
	}
}

func newElement(open *openElement, end int) element {
	text := open.text.String()
	return element{
		tag:       open.tag,
		start:     open.start,
		end:       end,
		text:      text,
		normText:  normalizeText(text),
		container: open.childBlocks > 0,
	}
}

// normalizeText collapses whitespace and lowercases; entity decoding already
// happened at tokenization.
func normalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Scoring thresholds for the structural layer.
const (
	scoreExact        = 10.0
	scoreContains     = 6.0
	scoreContained    = 3.0
	scoreOverlapMax   = 5.0
	minOverlapRatio   = 0.7
	containerMinScore = 8.0
	singleMinScore    = 5.0
)

// scoreElement rates how well an element's normalized text matches the
// normalized search text: exact equality > contains > snippet-contains-element
// > token overlap (scaled, capped).
func scoreElement(normSearch, normElem string) float64 {
	if normSearch == "" || normElem == "" {
		return 0
	}
	if normElem == normSearch {
		return scoreExact
	}
	if strings.Contains(normElem, normSearch) {
		return scoreContains
	}
	if strings.Contains(normSearch, normElem) {
		return scoreContained
	}
	if ratio := tokenOverlap(normSearch, normElem); ratio >= minOverlapRatio {
		return ratio * scoreOverlapMax
	}
	return 0
}

// tokenOverlap is the share of search tokens that appear in the element text.
func tokenOverlap(normSearch, normElem string) float64 {
	searchTokens := strings.Fields(normSearch)
	if len(searchTokens) == 0 {
		return 0
	}
	elemTokens := make(map[string]bool)
	for _, tok := range strings.Fields(normElem) {
		elemTokens[tok] = true
	}
	matched := 0
	for _, tok := range searchTokens {
		if elemTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(searchTokens))
}

// structuralMatch implements the tree layer: index the document's elements,
// score them against the normalized snippet text, splice the winner's span.
// For multi-element snippets a container-level pass runs first.
func structuralMatch(markup, search, replacement string) (string, bool, string) {
	normSearch := normalizeText(textOf(search))
	if normSearch == "" {
		return "", false, "search snippet has no text content"
	}

	elements := indexElements(markup)
	if len(elements) == 0 {
		return "", false, "document markup yielded no elements"
	}

	snippetBlocks := 0
	for _, el := range indexElements(search) {
		if !el.container {
			snippetBlocks++
		}
	}

	if snippetBlocks > 1 {
		var best *element
		bestScore := 0.0
		for i := range elements {
			if !elements[i].container {
				continue
			}
			if s := scoreElement(normSearch, elements[i].normText); s > bestScore {
				best, bestScore = &elements[i], s
			}
		}
		if best != nil && bestScore >= containerMinScore {
			return markup[:best.start] + replacement + markup[best.end:], true, ""
		}
	}

	var best *element
	bestScore := 0.0
	for i := range elements {
		if elements[i].container {
			continue
		}
		if s := scoreElement(normSearch, elements[i].normText); s > bestScore {
			best, bestScore = &elements[i], s
		}
	}
	if best != nil && bestScore >= singleMinScore {
		return markup[:best.start] + replacement + markup[best.end:], true, ""
	}

	return "", false, "no element scored above the match threshold"
}
