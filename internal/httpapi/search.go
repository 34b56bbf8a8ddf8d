package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/example/wikisync/internal/cache"
	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/index"
)

// searchParams is the normalized form of a search request.
type searchParams struct {
	query   string
	cats    []string
	spaces  []string
	limit   int
	content bool
}

func parseSearch(r *http.Request, defLimit int) (searchParams, index.SearchOptions) {
	q := r.URL.Query()
	p := searchParams{
		query:   strings.TrimSpace(q.Get("q")),
		spaces:  splitList(q["space"]),
		limit:   queryInt(r, "limit", defLimit),
		content: queryBool(r, "content"),
	}
	opts := index.SearchOptions{Spaces: p.spaces, MaxResults: p.limit, IncludeContent: p.content}
	for _, s := range splitList(q["category"]) {
		if c, ok := fileutil.ParseCategory(s); ok {
			opts.Categories = append(opts.Categories, c)
			p.cats = append(p.cats, string(c))
		}
	}
	slices.Sort(p.cats)
	slices.Sort(p.spaces)
	return p, opts
}

// bucket hashes the normalized parameters into the cache bucket name.
func (p searchParams) bucket() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(p.query))
	b.WriteByte('|')
	b.WriteString(strings.Join(p.cats, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(p.spaces, ","))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(p.limit))
	if p.content {
		b.WriteString("|content")
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []index.Result `json:"results"`
	Cached  bool           `json:"cached"`
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	p, opts := parseSearch(r, a.opts.MaxResults)
	key := cache.SearchKey(p.bucket())
	ctx := r.Context()

	if a.cache != nil {
		raw, err := a.cache.Get(ctx, key)
		if err == nil {
			var results []index.Result
			if jerr := json.Unmarshal([]byte(raw), &results); jerr == nil {
				writeJSON(w, http.StatusOK, searchResponse{Query: p.query, Results: results, Cached: true})
				return
			}
		} else if !errors.Is(err, cache.ErrNotFound) {
			a.logger.Warn().Err(err).Str("key", key).Msg("search cache read failed")
		}
	}

	results := a.index.Search(p.query, opts)
	if results == nil {
		results = []index.Result{}
	}
	if a.cache != nil && len(p.query) >= index.MinTokenLength {
		if buf, err := json.Marshal(results); err == nil {
			if err := a.cache.Put(ctx, key, string(buf), a.opts.SearchTTL); err != nil {
				a.logger.Warn().Err(err).Str("key", key).Msg("search cache write failed")
			}
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: p.query, Results: results})
}

func (a *API) handleSuggest(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	out := a.index.Suggest(prefix, queryInt(r, "limit", 0))
	if out == nil {
		out = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "suggestions": out})
}

func (a *API) evictSearches(ctx context.Context) {
	pd, ok := a.cache.(cache.PatternDeleter)
	if !ok {
		return
	}
	if _, err := pd.DeletePattern(ctx, cache.SearchPattern); err != nil {
		a.logger.Warn().Err(err).Msg("search cache eviction failed")
	}
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
