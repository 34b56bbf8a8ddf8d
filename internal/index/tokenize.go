package index

import (
	"regexp"
	"strings"
)

// MinTokenLength is the shortest token kept by Tokenize.
const MinTokenLength = 2

var nonWord = regexp.MustCompile(`[^\w\s-]`)

// stopWords are common English function words that carry no search value.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "can": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "it": {}, "its": {}, "an": {}, "as": {}, "if": {},
	"not": {}, "no": {}, "so": {}, "from": {}, "into": {}, "than": {}, "then": {},
	"there": {}, "their": {}, "they": {}, "we": {}, "you": {}, "he": {}, "she": {},
	"his": {}, "her": {}, "our": {}, "your": {}, "what": {}, "which": {}, "who": {},
	"when": {}, "where": {}, "why": {}, "how": {}, "all": {}, "any": {}, "each": {},
	"about": {}, "also": {}, "only": {}, "just": {}, "such": {}, "some": {},
}

// IsStopWord reports whether tok is dropped by Tokenize.
func IsStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

// Tokenize lower-cases text, turns everything except word characters,
// hyphens and whitespace into spaces, and returns the remaining fields that
// are at least MinTokenLength long and not stop words. Order and duplicates
// are preserved.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	out := fields[:0]
	for _, f := range fields {
		if len(f) < MinTokenLength {
			continue
		}
		if IsStopWord(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}
