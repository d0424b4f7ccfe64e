package matching

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagStripRe   = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// textOf strips tags and decodes entities, leaving plain text.
func textOf(markup string) string {
	return html.UnescapeString(tagStripRe.ReplaceAllString(markup, " "))
}

// fuzzyAnchorLen is how much of the normalized snippet must be locatable in
// the normalized document before the expensive regex attempt runs.
const fuzzyAnchorLen = 50

// fuzzyMatch implements the regex layer: both sides are normalized to verify
// the snippet's leading anchor exists at all, then a whitespace-tolerant
// regex built from the literal snippet runs against the original markup.
func fuzzyMatch(markup, search, replacement string) (string, bool, string) {
	normSearch := normalizeText(textOf(search))
	normDoc := normalizeText(textOf(markup))
	if normSearch == "" {
		return "", false, "search snippet has no text content"
	}

	anchor := normSearch
	if len(anchor) > fuzzyAnchorLen {
		anchor = anchor[:fuzzyAnchorLen]
	}
	if !strings.Contains(normDoc, anchor) {
		return "", false, "snippet anchor not present in document text"
	}

	flexRe, err := buildFlexiblePattern(search)
	if err != nil {
		return "", false, "could not build tolerant pattern: " + err.Error()
	}

	loc := flexRe.FindStringIndex(markup)
	if loc == nil {
		return "", false, "tolerant pattern did not match original markup"
	}
	return markup[:loc[0]] + replacement + markup[loc[1]:], true, ""
}

// buildFlexiblePattern turns the literal snippet into a regex that tolerates
// whitespace differences: runs of whitespace match any whitespace, and tag
// boundaries allow optional whitespace between them.
func buildFlexiblePattern(snippet string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(snippet)
	flexible := whitespaceRe.ReplaceAllString(quoted, `\s+`)
	flexible = strings.ReplaceAll(flexible, "><", `>\s*<`)
	return regexp.Compile("(?is)" + flexible)
}
