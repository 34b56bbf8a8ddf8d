package index

import (
	"container/heap"
	"sort"
	"strings"
	"time"

	"github.com/example/wikisync/internal/fileutil"
)

// Scoring weights.
const (
	scoreBase          = 1.0
	scoreNameBoost     = 5.0
	scoreMarkdownBoost = 2.0
	scoreTextBoost     = 1.0
	commonTokenFiles   = 10
	commonTokenDamping = 0.7

	DefaultMaxResults = 50
)

// SearchOptions narrows a search.
type SearchOptions struct {
	// Categories keeps only files of these categories when non-empty.
	Categories []fileutil.Category
	// Spaces keeps only files whose space ID or name is listed when non-empty.
	Spaces []string
	// MaxResults caps the result count; 0 selects DefaultMaxResults.
	MaxResults int
	// IncludeContent attaches the cached full text of text-like files.
	IncludeContent bool
}

// Result is one search hit.
type Result struct {
	Path      string            `json:"path"`
	FullPath  string            `json:"fullPath"`
	Name      string            `json:"name"`
	SpaceID   string            `json:"spaceId"`
	SpaceName string            `json:"spaceName"`
	Category  fileutil.Category `json:"category"`
	Size      int64             `json:"size"`
	Modified  time.Time         `json:"modified"`
	Score     float64           `json:"score"`
	Excerpt   string            `json:"excerpt,omitempty"`
	Content   string            `json:"content,omitempty"`
}

// Search scores every file sharing a token with query. Per query token each
// matching file earns 1, plus 5 when the token occurs in the file name, plus
// 2 for markdown or 1 for text files; the token's contribution is multiplied
// by 0.7 when more than 10 files contain it. Results are ordered by
// descending score, then path.
func (ix *Indexer) Search(query string, opts SearchOptions) []Result {
	if len(strings.TrimSpace(query)) < MinTokenLength {
		return []Result{}
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	cats := make(map[fileutil.Category]struct{}, len(opts.Categories))
	for _, c := range opts.Categories {
		cats[c] = struct{}{}
	}
	spaces := make(map[string]struct{}, len(opts.Spaces))
	for _, s := range opts.Spaces {
		spaces[s] = struct{}{}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make(map[string]float64)
	for _, tok := range tokens {
		set := ix.st.tokens[tok]
		damp := 1.0
		if len(set) > commonTokenFiles {
			damp = commonTokenDamping
		}
		for key := range set {
			f := ix.st.files[key]
			if f == nil {
				continue
			}
			s := scoreBase
			if strings.Contains(strings.ToLower(f.Name), tok) {
				s += scoreNameBoost
			}
			switch f.Category {
			case fileutil.CategoryMarkdown:
				s += scoreMarkdownBoost
			case fileutil.CategoryText:
				s += scoreTextBoost
			}
			scores[key] += s * damp
		}
	}

	h := &scoredHeap{}
	for key, sc := range scores {
		f := ix.st.files[key]
		if len(cats) > 0 {
			if _, ok := cats[f.Category]; !ok {
				continue
			}
		}
		if len(spaces) > 0 {
			_, byID := spaces[f.SpaceID]
			_, byName := spaces[f.SpaceName]
			if !byID && !byName {
				continue
			}
		}
		se := scored{file: f, score: sc}
		if h.Len() < limit {
			heap.Push(h, se)
		} else if worse((*h)[0], se) {
			(*h)[0] = se
			heap.Fix(h, 0)
		}
	}

	ranked := []scored(*h)
	sort.Slice(ranked, func(i, j int) bool { return worse(ranked[j], ranked[i]) })
	out := make([]Result, len(ranked))
	for i, se := range ranked {
		f := se.file
		out[i] = Result{
			Path:      f.RelPath,
			FullPath:  f.Path,
			Name:      f.Name,
			SpaceID:   f.SpaceID,
			SpaceName: f.SpaceName,
			Category:  f.Category,
			Size:      f.Size,
			Modified:  f.Modified,
			Score:     se.score,
			Excerpt:   f.Excerpt,
		}
		if opts.IncludeContent {
			out[i].Content = f.Content
		}
	}
	return out
}

type scored struct {
	file  *IndexedFile
	score float64
}

// worse reports whether a ranks below b: lower score, or equal score and a
// later space/path.
func worse(a, b scored) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	if a.file.RelPath != b.file.RelPath {
		return a.file.RelPath > b.file.RelPath
	}
	return a.file.SpaceName > b.file.SpaceName
}

// scoredHeap is a min-heap: the weakest kept result sits at the root.
type scoredHeap []scored

func (h scoredHeap) Len() int           { return len(h) }
func (h scoredHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)        { *h = append(*h, x.(scored)) }
func (h *scoredHeap) Pop() any          { old := *h; n := len(old); x := old[n-1]; *h = old[:n-1]; return x }
