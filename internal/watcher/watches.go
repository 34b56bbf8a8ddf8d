package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/wikisync/internal/debounce"
	"github.com/example/wikisync/internal/space"
)

// addTree watches absDir and every non-ignored directory below it, up to
// the watch cap. It returns how many watches were added.
func (w *Watcher) addTree(sp space.Space, absDir string) int {
	m := w.matchers[sp.ID]
	added := 0
	stack := []string{absDir}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !w.addWatch(dir) {
			if w.isCapped() {
				break
			}
			continue
		}
		added++

		entries, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("watcher: cannot list directory")
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			child := filepath.Join(dir, e.Name())
			rel, err := filepath.Rel(sp.Path, child)
			if err != nil || (m != nil && m.Ignored(rel, true)) {
				continue
			}
			stack = append(stack, child)
		}
	}
	return added
}

// scheduleContents debounces an add or addDir for every non-ignored entry
// below absDir. Keys are shared with live notifications, so an entry that
// also produces its own event settles once.
func (w *Watcher) scheduleContents(sp space.Space, absDir string) {
	m := w.matchers[sp.ID]
	_ = filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == absDir {
			return nil
		}
		rel, rerr := filepath.Rel(sp.Path, p)
		if rerr != nil {
			return nil
		}
		if m != nil && m.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case d.IsDir():
			w.deb.Debounce(debounce.Key(string(kindAddDir), p), func() { w.apply(kindAddDir, p) })
		case d.Type().IsRegular():
			w.deb.Debounce(debounce.Key(string(kindAdd), p), func() { w.apply(kindAdd, p) })
		}
		return nil
	})
}

func (w *Watcher) addWatch(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return false
	}
	if len(w.watched) >= w.opts.MaxWatchDirs {
		if !w.capped {
			w.capped = true
			w.logger.Warn().Int("cap", w.opts.MaxWatchDirs).Msg("watcher: watch limit reached, deeper directories are not watched")
		}
		return false
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn().Err(err).Str("dir", dir).Msg("watcher: add watch failed")
		return false
	}
	w.watched[dir] = struct{}{}
	return true
}

// removeTree forgets absDir and every watched directory below it.
func (w *Watcher) removeTree(absDir string) {
	prefix := absDir + string(filepath.Separator)
	w.mu.Lock()
	defer w.mu.Unlock()
	for p := range w.watched {
		if p == absDir || strings.HasPrefix(p, prefix) {
			// the kernel drops watches on deleted dirs itself; Remove then fails
			_ = w.fsw.Remove(p)
			delete(w.watched, p)
			w.gone[p] = struct{}{}
		}
	}
	if len(w.watched) < w.opts.MaxWatchDirs {
		w.capped = false
	}
}

func (w *Watcher) isWatched(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watched[dir]
	return ok
}

func (w *Watcher) isCapped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capped
}

func (w *Watcher) isGone(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.gone[dir]
	return ok
}

func (w *Watcher) settleGone(dir string) {
	prefix := dir + string(filepath.Separator)
	w.mu.Lock()
	defer w.mu.Unlock()
	for p := range w.gone {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(w.gone, p)
		}
	}
}
