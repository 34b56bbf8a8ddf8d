// Package httpapi serves the JSON search and diagnostics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/wikisync/internal/cache"
	"github.com/example/wikisync/internal/events"
	"github.com/example/wikisync/internal/index"
	"github.com/example/wikisync/internal/space"
)

// DefaultSearchTTL is how long a cached search bucket lives.
const DefaultSearchTTL = 5 * time.Minute

type Index interface {
	Build(ctx context.Context) error
	Search(query string, opts index.SearchOptions) []index.Result
	Suggest(prefix string, max int) []string
	Stats() index.Stats
}

type Bus interface {
	EmitChange(op, itemType string, md events.Metadata) (events.ChangeEvent, error)
	Recent(limit int) []events.ChangeEvent
	Stats() events.Stats
	Clear() int
}

// Invalidator evicts cache entries depending on a changed item.
type Invalidator interface {
	Invalidate(ctx context.Context, sp space.Space, rel string) []string
}

// SpaceLookup finds a space by ID or name.
type SpaceLookup interface {
	ByID(idOrName string) (space.Space, bool)
}

type Options struct {
	// Token is required as "Authorization: Bearer <token>" on /api routes.
	Token     string
	SearchTTL time.Duration
	// MaxResults applies when a search does not ask for a limit.
	MaxResults int
	// WS, when set, is mounted at /ws.
	WS http.Handler
}

// API holds the collaborators behind the HTTP endpoints. Cache, Cascade and
// Spaces may be nil.
type API struct {
	logger  zerolog.Logger
	opts    Options
	index   Index
	bus     Bus
	cache   cache.Cache
	cascade Invalidator
	spaces  SpaceLookup
}

func New(logger zerolog.Logger, ix Index, bus Bus, c cache.Cache, cascade Invalidator, spaces SpaceLookup, opts Options) *API {
	if opts.SearchTTL <= 0 {
		opts.SearchTTL = DefaultSearchTTL
	}
	return &API{
		logger:  logger.With().Str("component", "http").Logger(),
		opts:    opts,
		index:   ix,
		bus:     bus,
		cache:   c,
		cascade: cascade,
		spaces:  spaces,
	}
}

// Handler returns the routed mux.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if a.opts.WS != nil {
		mux.Handle("GET /ws", a.opts.WS)
	}
	mux.Handle("GET /api/search", a.auth(a.handleSearch))
	mux.Handle("GET /api/suggest", a.auth(a.handleSuggest))
	mux.Handle("GET /api/index/stats", a.auth(a.handleIndexStats))
	mux.Handle("POST /api/index/rebuild", a.auth(a.handleRebuild))
	mux.Handle("GET /api/events/recent", a.auth(a.handleRecentEvents))
	mux.Handle("GET /api/events/stats", a.auth(a.handleEventStats))
	mux.Handle("DELETE /api/events", a.auth(a.handleClearEvents))
	mux.Handle("POST /api/events", a.auth(a.handleEmitEvent))
	return mux
}

// auth requires Authorization: Bearer <token>; the token is not accepted in
// the URL or anywhere else.
func (a *API) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.Token == "" || r.Header.Get("Authorization") != "Bearer "+a.opts.Token {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func (a *API) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.index.Stats())
}

func (a *API) handleRebuild(w http.ResponseWriter, r *http.Request) {
	err := a.index.Build(r.Context())
	switch {
	case errors.Is(err, index.ErrBuildInProgress):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("rebuild failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.evictSearches(r.Context())
	writeJSON(w, http.StatusOK, a.index.Stats())
}

func (a *API) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, map[string]any{"events": a.bus.Recent(limit)})
}

func (a *API) handleEventStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.bus.Stats())
}

func (a *API) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": a.bus.Clear()})
}

type emitRequest struct {
	Operation string          `json:"operation"`
	ItemType  string          `json:"itemType"`
	Metadata  events.Metadata `json:"metadata"`
}

// handleEmitEvent is the funnel for mutations made through the API rather
// than observed on disk.
func (a *API) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Metadata.Source = events.SourceAPI

	// rejected changes must not evict anything; the bus logs the rejection
	_, opErr := events.ParseOperation(req.Operation)
	_, itErr := events.ParseItemType(req.ItemType)
	if opErr == nil && itErr == nil && a.spaces != nil && req.Metadata.SpaceID != "" {
		if sp, ok := a.spaces.ByID(req.Metadata.SpaceID); ok {
			req.Metadata.SpaceID, req.Metadata.SpaceName = sp.ID, sp.Name
			if a.cascade != nil {
				a.cascade.Invalidate(r.Context(), sp, req.Metadata.Path)
			}
		}
	}

	ev, err := a.bus.EmitChange(req.Operation, req.ItemType, req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ev)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
