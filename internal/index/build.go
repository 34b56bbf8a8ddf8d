package index

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/example/wikisync/internal/space"
)

// Build clears the index and walks every space root depth-first, indexing
// each file. A Build requested while another one runs is dropped and
// ErrBuildInProgress is returned. Unreadable files and directories are
// logged and skipped.
func (ix *Indexer) Build(ctx context.Context) error {
	if !ix.building.CompareAndSwap(false, true) {
		ix.logger.Warn().Msg("index: build already in progress, skipping request")
		return ErrBuildInProgress
	}
	defer ix.building.Store(false)

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	start := time.Now()
	st := newState()
	spaces := ix.Spaces()
	ix.logger.Info().Int("spaces", len(spaces)).Msg("index: build started")

	for _, sp := range spaces {
		if err := ix.walkSpace(ctx, st, sp); err != nil {
			ix.logger.Warn().Err(err).Str("space", sp.Name).Msg("index: build aborted")
			return err
		}
	}

	if ix.beforeSwap != nil {
		ix.beforeSwap()
	}

	elapsed := time.Since(start)
	ix.mu.Lock()
	ix.st = st
	ix.lastBuild = time.Now()
	ix.lastBuildDuration = elapsed
	files, tokens := len(st.files), len(st.tokens)
	ix.mu.Unlock()

	ix.logger.Info().
		Int("files", files).
		Int("tokens", tokens).
		Dur("took", elapsed).
		Msg("index: build complete")
	return nil
}

// walkSpace indexes one space into st using an explicit stack.
func (ix *Indexer) walkSpace(ctx context.Context, st *state, sp space.Space) error {
	m := ix.matcher(sp.ID, sp.Path)
	type dirState struct {
		absPath string
		relPath string
	}
	stack := []dirState{{absPath: sp.Path, relPath: ""}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(d.absPath)
		if err != nil {
			ix.logger.Warn().Err(err).Str("path", d.absPath).Msg("index: skipping unreadable directory")
			continue
		}
		for _, de := range entries {
			abs := filepath.Join(d.absPath, de.Name())
			rel := filepath.Join(d.relPath, de.Name())
			if m.Ignored(rel, de.IsDir()) {
				continue
			}
			if de.IsDir() {
				stack = append(stack, dirState{absPath: abs, relPath: rel})
				continue
			}
			if !de.Type().IsRegular() {
				continue
			}
			f, _, err := ix.load(sp, abs, rel, nil)
			if err != nil {
				ix.logger.Warn().Err(err).Str("path", abs).Msg("index: skipping file")
				continue
			}
			st.add(docKey(sp.ID, f.RelPath), f)
		}
	}
	return nil
}
