package ws

import (
	"github.com/rs/zerolog"

	"github.com/example/wikisync/internal/events"
	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/index"
)

// Searcher is the read side of the index.
type Searcher interface {
	Search(query string, opts index.SearchOptions) []index.Result
	Suggest(prefix string, max int) []string
	Stats() index.Stats
}

// History is the read side of the event bus.
type History interface {
	Recent(limit int) []events.ChangeEvent
	Stats() events.Stats
}

// Router answers client requests.
type Router struct {
	logger  zerolog.Logger
	index   Searcher
	history History
	version string
}

func NewRouter(logger zerolog.Logger, ix Searcher, history History, version string) *Router {
	return &Router{
		logger:  logger.With().Str("component", "ws-router").Logger(),
		index:   ix,
		history: history,
		version: version,
	}
}

func (r *Router) Attach(s *Server) {
	s.OnMessage = func(c *Conn, msg map[string]any) {
		if err := r.handle(c, msg); err != nil {
			r.logger.Debug().Err(err).Uint64("conn", c.ID()).Msg("reply failed")
		}
	}
}

func (r *Router) handle(c *Conn, m map[string]any) error {
	switch m["type"] {
	case "hello":
		return c.SendJSON(map[string]any{
			"type":     "welcome",
			"version":  r.version,
			"channels": []string{events.Channel},
			"features": map[string]bool{"search": r.index != nil, "events": r.history != nil},
		})
	case "ping":
		return c.SendJSON(map[string]any{"type": "pong"})
	case "search":
		// { type: "search", query, categories: [], spaces: [], limit, includeContent }
		if r.index == nil {
			return c.SendJSON(map[string]any{"type": "searchResult", "results": []any{}})
		}
		query, _ := m["query"].(string)
		opts := index.SearchOptions{MaxResults: asInt(m["limit"])}
		if cats, ok := anyToStrings(m["categories"]); ok {
			for _, s := range cats {
				if cat, ok := fileutil.ParseCategory(s); ok {
					opts.Categories = append(opts.Categories, cat)
				}
			}
		}
		if spaces, ok := anyToStrings(m["spaces"]); ok {
			opts.Spaces = spaces
		}
		opts.IncludeContent, _ = m["includeContent"].(bool)
		results := r.index.Search(query, opts)
		if results == nil {
			results = []index.Result{}
		}
		return c.SendJSON(map[string]any{"type": "searchResult", "query": query, "results": results})
	case "suggest":
		if r.index == nil {
			return c.SendJSON(map[string]any{"type": "suggestions", "suggestions": []string{}})
		}
		prefix, _ := m["prefix"].(string)
		out := r.index.Suggest(prefix, asInt(m["limit"]))
		if out == nil {
			out = []string{}
		}
		return c.SendJSON(map[string]any{"type": "suggestions", "prefix": prefix, "suggestions": out})
	case "indexStats":
		if r.index == nil {
			c.Errorf("index unavailable")
			return nil
		}
		return c.SendJSON(map[string]any{"type": "indexStats", "stats": r.index.Stats()})
	case "recentEvents":
		if r.history == nil {
			return c.SendJSON(map[string]any{"type": "recentEvents", "events": []any{}})
		}
		return c.SendJSON(map[string]any{"type": "recentEvents", "events": r.history.Recent(asInt(m["limit"]))})
	case "eventStats":
		if r.history == nil {
			c.Errorf("event history unavailable")
			return nil
		}
		return c.SendJSON(map[string]any{"type": "eventStats", "stats": r.history.Stats()})
	default:
		c.Errorf("unknown message type %v", m["type"])
		return nil
	}
}

func anyToStrings(a any) ([]string, bool) {
	if a == nil {
		return nil, false
	}
	arr, ok := a.([]any)
	if !ok {
		return nil, false
	}
	res := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			res = append(res, s)
		}
	}
	return res, true
}

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	default:
		return 0
	}
}
