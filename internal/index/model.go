// Package index implements the in-memory inverted index over every file of
// every registered space.
//
// All mutations (Build, IndexFile, UpdateFile, RemoveFile, RemoveTree) are
// serialized through a single writer lock. Build assembles a fresh state and
// swaps it in, so an incremental update that arrives during a rebuild waits
// and is applied on top of the new state instead of being lost. Readers
// (Search, Suggest, Stats) only take the read lock.
package index

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/space"
)

// ErrBuildInProgress is returned when Build is called while another build runs.
var ErrBuildInProgress = errors.New("index build already in progress")

// IndexedFile is the metadata kept for one file.
type IndexedFile struct {
	Path        string              `json:"fullPath"`
	RelPath     string              `json:"path"` // slash-separated, relative to the space root
	Name        string              `json:"name"`
	Size        int64               `json:"size"`
	Category    fileutil.Category   `json:"category"`
	SpaceID     string              `json:"spaceId"`
	SpaceName   string              `json:"spaceName"`
	Modified    time.Time           `json:"modified"`
	Tokens      map[string]struct{} `json:"-"`
	Excerpt     string              `json:"excerpt,omitempty"`
	Content     string              `json:"-"`
	ContentHash uint64              `json:"-"` // xxhash of Content, zero when the body was not indexed
}

// Options tunes an Indexer.
type Options struct {
	// MaxFileSize bounds content reads; larger text files are indexed by name only.
	MaxFileSize int64
	// ExcerptLength is the excerpt size in characters.
	ExcerptLength int
	// Ignore holds extra doublestar patterns skipped in every space.
	Ignore []string
}

// state is the token and file maps. It is never shared between a build in
// progress and the published index.
type state struct {
	tokens map[string]map[string]struct{} // token -> doc keys
	files  map[string]*IndexedFile        // doc key -> file
}

func newState() *state {
	return &state{
		tokens: make(map[string]map[string]struct{}),
		files:  make(map[string]*IndexedFile),
	}
}

// Indexer maintains the inverted index for a set of spaces.
type Indexer struct {
	logger zerolog.Logger
	opts   Options

	spacesMu sync.RWMutex
	spaces   []space.Space
	matchers map[string]*fileutil.Matcher // space ID -> matcher

	writeMu sync.Mutex // single writer for every mutation

	mu                sync.RWMutex
	st                *state
	lastBuild         time.Time
	lastBuildDuration time.Duration

	building atomic.Bool

	beforeSwap func() // test hook, runs under the writer lock
}

// New creates an empty Indexer.
func New(logger zerolog.Logger, opts Options) *Indexer {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = fileutil.DefaultMaxTextSize
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = DefaultExcerptLength
	}
	return &Indexer{
		logger:   logger.With().Str("component", "index").Logger(),
		opts:     opts,
		matchers: make(map[string]*fileutil.Matcher),
		st:       newState(),
	}
}

// SetSpaces replaces the set of spaces walked by Build.
func (ix *Indexer) SetSpaces(spaces []space.Space) {
	ix.spacesMu.Lock()
	defer ix.spacesMu.Unlock()
	ix.spaces = make([]space.Space, 0, len(spaces))
	ix.matchers = make(map[string]*fileutil.Matcher, len(spaces))
	for _, s := range spaces {
		s = space.Normalize(s)
		ix.spaces = append(ix.spaces, s)
		ix.matchers[s.ID] = fileutil.NewMatcher(s.Path, ix.opts.Ignore)
	}
}

// Spaces returns the configured spaces.
func (ix *Indexer) Spaces() []space.Space {
	ix.spacesMu.RLock()
	defer ix.spacesMu.RUnlock()
	out := make([]space.Space, len(ix.spaces))
	copy(out, ix.spaces)
	return out
}

// InvalidateIgnoreRules drops cached .gitignore chains for a space.
func (ix *Indexer) InvalidateIgnoreRules(spaceID string) {
	if m := ix.matcher(spaceID, ""); m != nil {
		m.Invalidate()
	}
}

func (ix *Indexer) matcher(spaceID, root string) *fileutil.Matcher {
	ix.spacesMu.RLock()
	m := ix.matchers[spaceID]
	ix.spacesMu.RUnlock()
	if m != nil || root == "" {
		return m
	}
	ix.spacesMu.Lock()
	defer ix.spacesMu.Unlock()
	if m = ix.matchers[spaceID]; m == nil {
		m = fileutil.NewMatcher(root, ix.opts.Ignore)
		ix.matchers[spaceID] = m
	}
	return m
}

// Building reports whether a full build is running.
func (ix *Indexer) Building() bool { return ix.building.Load() }

func docKey(spaceID, rel string) string { return spaceID + "::" + rel }

// add links every token of f to its doc key.
func (s *state) add(key string, f *IndexedFile) {
	s.files[key] = f
	for tok := range f.Tokens {
		set, ok := s.tokens[tok]
		if !ok {
			set = make(map[string]struct{})
			s.tokens[tok] = set
		}
		set[key] = struct{}{}
	}
}

// remove unlinks the file's tokens, deleting token entries left empty.
func (s *state) remove(key string) bool {
	f, ok := s.files[key]
	if !ok {
		return false
	}
	for tok := range f.Tokens {
		set, ok := s.tokens[tok]
		if !ok {
			continue
		}
		delete(set, key)
		if len(set) == 0 {
			delete(s.tokens, tok)
		}
	}
	delete(s.files, key)
	return true
}
