package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/space"
)

// load stats and, for text-like categories, reads the file at abs and
// returns its IndexedFile. rel is relative to the space root. When prev holds
// the same content hash its tokens and excerpt are reused and unchanged is
// true.
func (ix *Indexer) load(sp space.Space, abs, rel string, prev *IndexedFile) (f *IndexedFile, unchanged bool, err error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("%s is a directory", abs)
	}
	relSlash := filepath.ToSlash(rel)
	name := filepath.Base(abs)
	f = &IndexedFile{
		Path:      abs,
		RelPath:   relSlash,
		Name:      name,
		Size:      info.Size(),
		Category:  fileutil.DetectCategory(name),
		SpaceID:   sp.ID,
		SpaceName: sp.Name,
		Modified:  info.ModTime(),
		Tokens:    make(map[string]struct{}),
	}
	for _, tok := range Tokenize(name) {
		f.Tokens[tok] = struct{}{}
	}
	for _, tok := range Tokenize(relSlash) {
		f.Tokens[tok] = struct{}{}
	}
	if !f.Category.IsTextLike() {
		return f, false, nil
	}

	content, err := fileutil.ReadText(abs, ix.opts.MaxFileSize)
	switch {
	case errors.Is(err, fileutil.ErrTooLarge), errors.Is(err, fileutil.ErrNotText):
		// keep the name tokens, skip the body
		ix.logger.Debug().Err(err).Str("path", abs).Msg("index: content not indexed")
		return f, false, nil
	case err != nil:
		return nil, false, err
	}
	f.ContentHash = xxhash.Sum64String(content)
	if prev != nil && prev.ContentHash == f.ContentHash && prev.RelPath == f.RelPath {
		f.Tokens, f.Content, f.Excerpt = prev.Tokens, prev.Content, prev.Excerpt
		return f, true, nil
	}
	for _, tok := range Tokenize(content) {
		f.Tokens[tok] = struct{}{}
	}
	f.Content = content
	f.Excerpt = Excerpt(content, ix.opts.ExcerptLength)
	return f, false, nil
}

// IndexFile indexes the file at absPath inside sp, replacing any previous
// entry for the same path.
func (ix *Indexer) IndexFile(sp space.Space, absPath string) (*IndexedFile, error) {
	f, _, err := ix.indexFile(sp, absPath)
	return f, err
}

// indexFile is IndexFile that also reports whether the body was unchanged,
// in which case only the file metadata was refreshed.
func (ix *Indexer) indexFile(sp space.Space, absPath string) (*IndexedFile, bool, error) {
	sp = space.Normalize(sp)
	rel, err := relTo(sp, absPath)
	if err != nil {
		return nil, false, err
	}
	if ix.matcher(sp.ID, sp.Path).Ignored(rel, false) {
		return nil, false, nil
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	// the writer lock keeps ix.st stable for the lookup
	key := docKey(sp.ID, filepath.ToSlash(rel))
	f, unchanged, err := ix.load(sp, absPath, rel, ix.st.files[key])
	if err != nil {
		return nil, false, err
	}
	ix.mu.Lock()
	if unchanged {
		ix.st.files[key] = f
	} else {
		ix.st.remove(key)
		ix.st.add(key, f)
	}
	ix.mu.Unlock()
	return f, unchanged, nil
}

// RemoveFile drops the file at rel (relative to the space root) and every
// token reference it owned. It reports whether the file was indexed.
func (ix *Indexer) RemoveFile(spaceID, rel string) bool {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.st.remove(docKey(spaceID, filepath.ToSlash(rel)))
}

// RemoveTree drops every file under the directory relDir and returns how
// many were removed.
func (ix *Indexer) RemoveTree(spaceID, relDir string) int {
	prefix := filepath.ToSlash(filepath.Clean(relDir))
	if prefix == "." {
		prefix = ""
	} else {
		prefix += "/"
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for key, f := range ix.st.files {
		if f.SpaceID != spaceID || !strings.HasPrefix(f.RelPath, prefix) {
			continue
		}
		if ix.st.remove(key) {
			n++
		}
	}
	return n
}

// UpdateFile re-indexes a single file: its previous entry is removed first so
// no stale tokens survive. A file that no longer exists is only removed.
func (ix *Indexer) UpdateFile(sp space.Space, absPath string) error {
	sp = space.Normalize(sp)
	rel, err := relTo(sp, absPath)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(absPath); errors.Is(statErr, fs.ErrNotExist) {
		removed := ix.RemoveFile(sp.ID, rel)
		ix.logger.Info().Str("space", sp.Name).Str("path", rel).Bool("removed", removed).Msg("index: file gone, removed")
		return nil
	}
	f, unchanged, err := ix.indexFile(sp, absPath)
	if err != nil {
		ix.logger.Warn().Err(err).Str("space", sp.Name).Str("path", rel).Msg("index: update failed")
		return err
	}
	if f == nil {
		ix.logger.Debug().Str("space", sp.Name).Str("path", rel).Msg("index: ignored file not indexed")
		return nil
	}
	if unchanged {
		ix.logger.Debug().Str("space", sp.Name).Str("path", f.RelPath).Msg("index: content unchanged, tokens kept")
		return nil
	}
	ix.logger.Info().Str("space", sp.Name).Str("path", f.RelPath).Int("tokens", len(f.Tokens)).Msg("index: file updated")
	return nil
}

// IndexTree indexes every non-ignored file under the directory absDir.
func (ix *Indexer) IndexTree(sp space.Space, absDir string) int {
	sp = space.Normalize(sp)
	m := ix.matcher(sp.ID, sp.Path)
	n := 0
	_ = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := relTo(sp, p)
		if rerr != nil {
			return nil
		}
		if rel != "." && m.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, err := ix.IndexFile(sp, p); err != nil {
			ix.logger.Warn().Err(err).Str("path", p).Msg("index: skipping file")
			return nil
		}
		n++
		return nil
	})
	return n
}

// File returns a copy of the indexed metadata for rel in spaceID.
func (ix *Indexer) File(spaceID, rel string) (IndexedFile, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	f, ok := ix.st.files[docKey(spaceID, filepath.ToSlash(rel))]
	if !ok {
		return IndexedFile{}, false
	}
	return *f, true
}

func relTo(sp space.Space, absPath string) (string, error) {
	rel, err := filepath.Rel(sp.Path, filepath.Clean(absPath))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", space.ErrNoSpace, absPath)
	}
	return rel, nil
}
