// Package watcher turns raw filesystem notifications under every registered
// space into settled application actions: content pre-caching, cache
// invalidation, incremental index updates and change events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/example/wikisync/internal/cache"
	"github.com/example/wikisync/internal/debounce"
	"github.com/example/wikisync/internal/events"
	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/index"
	"github.com/example/wikisync/internal/space"
)

const (
	DefaultPrecacheTTL  = 1800 * time.Second
	DefaultMaxWatchDirs = 8192
)

// Index is the incremental side of the inverted index.
type Index interface {
	UpdateFile(sp space.Space, absPath string) error
	RemoveFile(spaceID, rel string) bool
	RemoveTree(spaceID, relDir string) int
	IndexTree(sp space.Space, absDir string) int
	InvalidateIgnoreRules(spaceID string)
	File(spaceID, rel string) (index.IndexedFile, bool)
}

// Invalidator evicts cache entries depending on a changed item.
type Invalidator interface {
	Invalidate(ctx context.Context, sp space.Space, rel string) []string
}

// Emitter receives settled changes.
type Emitter interface {
	Emit(c events.Change) events.ChangeEvent
}

// Deps are the collaborators a Watcher drives. Any of them may be nil.
type Deps struct {
	Cache   cache.Cache
	Cascade Invalidator
	Index   Index
	Bus     Emitter
}

type Options struct {
	Debounce     time.Duration
	PrecacheTTL  time.Duration
	MaxWatchDirs int
	MaxFileSize  int64
	// Ignore holds extra doublestar patterns skipped in every space.
	Ignore []string
}

// Watcher watches every space root recursively.
type Watcher struct {
	logger   zerolog.Logger
	opts     Options
	deps     Deps
	resolver *space.Resolver
	matchers map[string]*fileutil.Matcher // space ID -> matcher
	deb      *debounce.Debouncer

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	watched map[string]struct{} // absolute dirs
	gone    map[string]struct{} // removed dirs whose unlinkDir has not settled
	capped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher for spaces. Spaces without a root path are skipped.
func New(logger zerolog.Logger, spaces []space.Space, deps Deps, opts Options) *Watcher {
	if opts.PrecacheTTL <= 0 {
		opts.PrecacheTTL = DefaultPrecacheTTL
	}
	if opts.MaxWatchDirs <= 0 {
		opts.MaxWatchDirs = DefaultMaxWatchDirs
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = fileutil.DefaultMaxTextSize
	}
	var rooted []space.Space
	for _, s := range spaces {
		if s.Path != "" {
			rooted = append(rooted, s)
		}
	}
	w := &Watcher{
		logger:   logger.With().Str("component", "watcher").Logger(),
		opts:     opts,
		deps:     deps,
		resolver: space.NewResolver(rooted),
		matchers: make(map[string]*fileutil.Matcher),
		deb:      debounce.New(opts.Debounce),
		watched:  make(map[string]struct{}),
		gone:     make(map[string]struct{}),
		ctx:      context.Background(),
		cancel:   func() {},
	}
	for _, s := range w.resolver.Spaces() {
		w.matchers[s.ID] = fileutil.NewMatcher(s.Path, opts.Ignore)
	}
	w.deb.OnPanic = func(key string, v any) {
		w.logger.Error().Interface("panic", v).Str("key", key).Msg("watcher: action panicked")
	}
	return w
}

// Start subscribes to every space and begins dispatching notifications. With
// no spaces configured it logs and returns without watching.
func (w *Watcher) Start(ctx context.Context) error {
	spaces := w.resolver.Spaces()
	if len(spaces) == 0 {
		w.logger.Info().Msg("watcher: no spaces with a root path configured, not watching")
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: fsnotify unavailable: %w", err)
	}
	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)

	added := 0
	for _, sp := range spaces {
		if _, err := os.Stat(sp.Path); err != nil {
			w.logger.Warn().Err(err).Str("space", sp.Name).Msg("watcher: space root unavailable")
			continue
		}
		added += w.addTree(sp, sp.Path)
	}
	w.logger.Info().
		Int("spaces", len(spaces)).
		Int("dirs", added).
		Int("cap", w.opts.MaxWatchDirs).
		Dur("debounce", w.deb.Delay()).
		Msg("watcher: started")

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Close stops watching, drops pending actions and waits for running ones.
func (w *Watcher) Close() error {
	var err error
	if w.fsw != nil {
		w.cancel()
		err = w.fsw.Close()
		w.wg.Wait()
	}
	w.deb.Stop()
	return err
}

// Spaces returns the watched spaces.
func (w *Watcher) Spaces() []space.Space { return w.resolver.Spaces() }

// Stats is a diagnostics snapshot.
type Stats struct {
	Spaces      int  `json:"spaces"`
	WatchedDirs int  `json:"watchedDirs"`
	Capped      bool `json:"capped"`
	Pending     int  `json:"pending"`
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Spaces:      len(w.resolver.Spaces()),
		WatchedDirs: len(w.watched),
		Capped:      w.capped,
		Pending:     w.deb.Pending(),
	}
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Error().Err(err).Msg("watcher: event queue overflowed, changes were lost")
				continue
			}
			w.logger.Warn().Err(err).Msg("watcher: fsnotify error")
		}
	}
}

// handle classifies a raw notification and schedules the settled action.
func (w *Watcher) handle(ev fsnotify.Event) {
	abs := filepath.Clean(ev.Name)
	sp, rel, err := w.resolver.Resolve(abs)
	if err != nil {
		w.logger.Warn().Str("path", abs).Msg("watcher: no space owns path, dropped")
		return
	}
	if rel == "." {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.logger.Warn().Str("space", sp.Name).Msg("watcher: space root removed")
		}
		return
	}
	if filepath.Base(abs) == ".gitignore" {
		w.matchers[sp.ID].Invalidate()
		if w.deps.Index != nil {
			w.deps.Index.InvalidateIgnoreRules(sp.ID)
		}
	}

	k, ok := w.classify(ev, sp, rel, abs)
	if !ok || w.matchers[sp.ID].Ignored(rel, k.isDir()) {
		return
	}
	if k == kindAddDir {
		// watch right away so files created inside are not missed
		w.addTree(sp, abs)
		// a tree moved in whole brings no events for its contents
		w.scheduleContents(sp, abs)
	}
	if k == kindUnlinkDir {
		w.removeTree(abs)
	}

	act := func() { w.apply(k, abs) }
	if k == kindChange && w.deb.Extend(debounce.Key(string(kindAdd), abs), func() { w.apply(kindAdd, abs) }) {
		// still settling a create: the add reads the final content
		return
	}
	w.deb.Debounce(debounce.Key(string(k), abs), act)
}

type kind string

const (
	kindAdd       kind = "add"
	kindAddDir    kind = "addDir"
	kindChange    kind = "change"
	kindUnlink    kind = "unlink"
	kindUnlinkDir kind = "unlinkDir"
)

func (k kind) isDir() bool { return k == kindAddDir || k == kindUnlinkDir }

func (w *Watcher) classify(ev fsnotify.Event, sp space.Space, rel, abs string) (kind, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		fi, err := os.Lstat(abs)
		if err != nil {
			// gone again before we looked; the remove event follows
			return "", false
		}
		if fi.IsDir() {
			return kindAddDir, true
		}
		if w.indexed(sp, rel) {
			// replaced in place: rename-over saves, or delete and recreate
			// within one settling period
			w.deb.Cancel(debounce.Key(string(kindUnlink), abs))
			return kindChange, true
		}
		return kindAdd, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if w.isWatched(abs) || w.isGone(abs) {
			return kindUnlinkDir, true
		}
		return kindUnlink, true
	case ev.Has(fsnotify.Write):
		if w.isWatched(abs) {
			return "", false
		}
		return kindChange, true
	}
	return "", false
}

func (w *Watcher) indexed(sp space.Space, rel string) bool {
	if w.deps.Index == nil {
		return false
	}
	_, ok := w.deps.Index.File(sp.ID, filepath.ToSlash(rel))
	return ok
}
