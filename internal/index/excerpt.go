package index

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultExcerptLength is the number of characters kept in an excerpt.
const DefaultExcerptLength = 200

var (
	reFrontMatter = regexp.MustCompile(`\A---\r?\n(?s:.*?)\r?\n---\r?\n`)
	reFence       = regexp.MustCompile("(?m)^\\s*(```|~~~)[^\\n]*$")
	reImage       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reLink        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reHeading     = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	reQuote       = regexp.MustCompile(`(?m)^\s*>\s?`)
	reList        = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	reRule        = regexp.MustCompile(`(?m)^\s*(?:[-*_]\s*){3,}$`)
	reHTML        = regexp.MustCompile(`<[^>]+>`)
	reEmphasis    = regexp.MustCompile("[*_~`]+")
)

// StripMarkdown removes markdown syntax and collapses whitespace.
func StripMarkdown(s string) string {
	s = reFrontMatter.ReplaceAllString(s, "")
	s = reFence.ReplaceAllString(s, "")
	s = reImage.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reRule.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reQuote.ReplaceAllString(s, "")
	s = reList.ReplaceAllString(s, "")
	s = reHTML.ReplaceAllString(s, "")
	s = reEmphasis.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Excerpt returns the first n characters of content with markdown stripped.
// Truncated excerpts end with "...".
func Excerpt(content string, n int) string {
	if n <= 0 {
		n = DefaultExcerptLength
	}
	plain := StripMarkdown(content)
	if utf8.RuneCountInString(plain) <= n {
		return plain
	}
	r := []rune(plain)
	return strings.TrimSpace(string(r[:n])) + "..."
}
