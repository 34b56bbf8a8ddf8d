package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/example/wikisync/internal/cache"
	"github.com/example/wikisync/internal/events"
	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/space"
)

// apply runs the settled action for one debounced notification.
func (w *Watcher) apply(k kind, abs string) {
	sp, rel, err := w.resolver.Resolve(abs)
	if err != nil {
		w.logger.Warn().Str("path", abs).Str("kind", string(k)).Msg("watcher: no space owns path, dropped")
		return
	}
	rel = filepath.ToSlash(rel)
	md := events.Metadata{
		Source:     events.SourceWatcher,
		SpaceID:    sp.ID,
		SpaceName:  sp.Name,
		Name:       filepath.Base(abs),
		Path:       rel,
		ParentPath: space.ParentPath(rel),
		FullPath:   abs,
		Changed:    time.Now(),
	}

	switch k {
	case kindAdd, kindChange:
		fi, err := os.Stat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug().Str("path", abs).Str("kind", string(k)).Msg("watcher: file vanished before settling")
			return
		}
		if err != nil {
			w.logger.Warn().Err(err).Str("path", abs).Msg("watcher: stat failed")
			return
		}
		if fi.IsDir() {
			return
		}
		size, mod := fi.Size(), fi.ModTime()
		md.Size, md.Modified = &size, &mod

		// index first so searches cached after the eviction see the change;
		// the cascade evicts the content key, so refill it afterwards
		w.updateIndex(sp, abs)
		w.invalidate(sp, rel)
		w.precache(sp, rel, abs)
		if k == kindAdd {
			w.emit(events.FileCreated{Meta: md})
		} else {
			w.emit(events.FileUpdated{Meta: md})
		}

	case kindAddDir:
		if fi, err := os.Stat(abs); err == nil {
			mod := fi.ModTime()
			md.Modified = &mod
		}
		if w.deps.Index != nil {
			n := w.deps.Index.IndexTree(sp, abs)
			w.logger.Debug().Str("space", sp.Name).Str("path", rel).Int("files", n).Msg("watcher: indexed new directory")
		}
		w.invalidate(sp, rel)
		w.emit(events.FolderCreated{Meta: md})

	case kindUnlink:
		if w.deps.Index != nil {
			w.deps.Index.RemoveFile(sp.ID, rel)
		}
		w.dropPrecache(sp, rel)
		w.invalidate(sp, rel)
		w.emit(events.FileDeleted{Meta: md})

	case kindUnlinkDir:
		w.settleGone(abs)
		if w.deps.Index != nil {
			n := w.deps.Index.RemoveTree(sp.ID, rel)
			w.logger.Debug().Str("space", sp.Name).Str("path", rel).Int("files", n).Msg("watcher: unindexed directory")
		}
		w.invalidate(sp, rel)
		w.emit(events.FolderDeleted{Meta: md})
	}
}

// precache stores the text content of a text-like file so the first read
// after a change is served from cache.
func (w *Watcher) precache(sp space.Space, rel, abs string) {
	if w.deps.Cache == nil || !fileutil.DetectCategory(abs).IsTextLike() {
		return
	}
	content, err := fileutil.ReadText(abs, w.opts.MaxFileSize)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", abs).Msg("watcher: not pre-cached")
		return
	}
	key := cache.ContentKey(sp.Name, rel)
	if err := w.deps.Cache.Put(w.ctx, key, content, w.opts.PrecacheTTL); err != nil {
		w.logger.Warn().Err(err).Str("key", key).Msg("watcher: pre-cache failed")
	}
}

func (w *Watcher) dropPrecache(sp space.Space, rel string) {
	if w.deps.Cache == nil {
		return
	}
	key := cache.ContentKey(sp.Name, rel)
	if _, err := w.deps.Cache.Get(w.ctx, key); err != nil {
		return
	}
	if err := w.deps.Cache.Delete(w.ctx, key); err != nil {
		w.logger.Warn().Err(err).Str("key", key).Msg("watcher: pre-cache delete failed")
	}
}

func (w *Watcher) invalidate(sp space.Space, rel string) {
	if w.deps.Cascade != nil {
		w.deps.Cascade.Invalidate(w.ctx, sp, rel)
	}
}

func (w *Watcher) updateIndex(sp space.Space, abs string) {
	if w.deps.Index == nil {
		return
	}
	// UpdateFile logs its own outcome
	_ = w.deps.Index.UpdateFile(sp, abs)
}

func (w *Watcher) emit(c events.Change) {
	if w.deps.Bus != nil {
		w.deps.Bus.Emit(c)
	}
}
