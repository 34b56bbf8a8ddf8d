package index

import (
	"sort"
	"strings"
)

// DefaultMaxSuggestions caps Suggest when max is not positive.
const DefaultMaxSuggestions = 10

// Suggest returns up to max distinct completions for prefix: index tokens
// starting with it and file names containing it. Prefix-anchored matches
// come first, then shorter ones, then alphabetical order.
func (ix *Indexer) Suggest(prefix string, max int) []string {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if p == "" {
		return []string{}
	}
	if max <= 0 {
		max = DefaultMaxSuggestions
	}

	seen := make(map[string]struct{})
	var cands []string
	add := func(s string) {
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		cands = append(cands, s)
	}

	ix.mu.RLock()
	for tok := range ix.st.tokens {
		if strings.HasPrefix(tok, p) {
			add(tok)
		}
	}
	for _, f := range ix.st.files {
		if strings.Contains(strings.ToLower(f.Name), p) {
			add(f.Name)
		}
	}
	ix.mu.RUnlock()

	sort.Slice(cands, func(i, j int) bool {
		a, b := strings.ToLower(cands[i]), strings.ToLower(cands[j])
		ai, bi := strings.HasPrefix(a, p), strings.HasPrefix(b, p)
		if ai != bi {
			return ai
		}
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	if len(cands) > max {
		cands = cands[:max]
	}
	return cands
}
