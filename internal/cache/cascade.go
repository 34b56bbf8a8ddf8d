package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/example/wikisync/internal/space"
)

// Cascade evicts every cache entry whose contents depend on an item in a
// space: the item itself, each ancestor folder listing up to the root, the
// global aggregates and cached search results.
type Cascade struct {
	cache  Cache
	logger zerolog.Logger
}

// NewCascade creates a Cascade over c.
func NewCascade(c Cache, logger zerolog.Logger) *Cascade {
	return &Cascade{cache: c, logger: logger.With().Str("component", "cascade").Logger()}
}

// Keys lists, without duplicates, the exact keys a change at rel invalidates.
// Folder listings are keyed both by space ID and by space name since callers
// use either.
func (c *Cascade) Keys(sp space.Space, rel string) []string {
	ids := []string{sp.Key()}
	if sp.Name != "" && sp.Name != sp.Key() {
		ids = append(ids, sp.Name)
	}

	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	add(ContentKey(sp.Name, rel))
	for _, id := range ids {
		if d := cleanDir(rel); d != "" {
			// the item may itself be a folder with a cached listing
			add(FolderKey(id, d))
		}
		for _, dir := range Ancestors(rel) {
			add(FolderKey(id, dir))
		}
	}
	add(KeyDocumentsList)
	add(KeyRecentModified)
	add(KeyRecentActivity)
	for _, id := range ids {
		add(SpaceDocumentsKey(id))
	}
	return keys
}

// Invalidate evicts the keys for a change at rel and wildcard-evicts search
// buckets when the cache supports patterns. Failures are logged and skipped.
// It returns the keys that were deleted without error.
func (c *Cascade) Invalidate(ctx context.Context, sp space.Space, rel string) []string {
	keys := c.Keys(sp, rel)
	evicted := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := c.cache.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", k).Msg("cascade: delete failed")
			continue
		}
		evicted = append(evicted, k)
	}

	if pd, ok := c.cache.(PatternDeleter); ok {
		n, err := pd.DeletePattern(ctx, SearchPattern)
		if err != nil {
			c.logger.Warn().Err(err).Str("pattern", SearchPattern).Msg("cascade: search bucket eviction failed")
		} else if n > 0 {
			c.logger.Debug().Int("buckets", n).Msg("cascade: search buckets evicted")
		}
	}

	c.logger.Debug().
		Str("space", sp.Name).
		Str("path", rel).
		Int("keys", len(evicted)).
		Msg("cascade: invalidated")
	return evicted
}
