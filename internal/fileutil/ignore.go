package fileutil

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// noiseNames are never indexed or watched regardless of ignore files.
var noiseNames = map[string]struct{}{
	".git":            {},
	".svn":            {},
	".hg":             {},
	".DS_Store":       {},
	"Thumbs.db":       {},
	"desktop.ini":     {},
	".Spotlight-V100": {},
	".Trashes":        {},
	"node_modules":    {},
}

// IsNoise reports whether a base name is version-control metadata, an OS
// artifact or an editor temp file.
func IsNoise(name string) bool {
	if _, ok := noiseNames[name]; ok {
		return true
	}
	if strings.HasPrefix(name, "._") || strings.HasPrefix(name, ".#") {
		return true
	}
	return strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".swx") || strings.HasSuffix(name, ".tmp")
}

// rule is a .gitignore rule set anchored at a directory.
// baseRel is relative to the matcher root ("." for the root itself).
type rule struct {
	baseRel string
	ign     *ignore.GitIgnore
}

// Matcher decides which paths under a root are ignored. It combines the noise
// list, nested .gitignore files and extra doublestar globs.
type Matcher struct {
	root  string
	extra []string

	mu    sync.Mutex
	rules map[string][]rule // dir rel path ("" for root) -> rule chain
}

// NewMatcher creates a Matcher for root. extra holds doublestar patterns
// evaluated against slash-separated relative paths.
func NewMatcher(root string, extra []string) *Matcher {
	return &Matcher{
		root:  root,
		extra: extra,
		rules: make(map[string][]rule),
	}
}

// Root returns the directory the matcher is anchored at.
func (m *Matcher) Root() string { return m.root }

// Ignored reports whether rel (relative to the root) should be skipped.
func (m *Matcher) Ignored(rel string, isDir bool) bool {
	rel = filepath.Clean(rel)
	if rel == "." || rel == "" {
		return false
	}
	for _, seg := range splitPath(rel) {
		if IsNoise(seg) {
			return true
		}
	}
	slash := NormalizeSlash(rel)
	for _, p := range m.extra {
		if ok, _ := doublestar.Match(p, slash); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(p, slash+"/"); ok {
				return true
			}
		}
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		dir = ""
	}
	return ignoredByRules(m.chain(dir), rel, isDir)
}

// Invalidate drops cached rule chains, e.g. after a .gitignore changed.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.rules = make(map[string][]rule)
	m.mu.Unlock()
}

// chain builds the rule chain from the root down to dirRel.
func (m *Matcher) chain(dirRel string) []rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rules[dirRel]; ok {
		return r
	}
	var r []rule
	if ign := compileIgnoreLines(readIgnoreLines(filepath.Join(m.root, ".gitignore"))); ign != nil {
		r = append(r, rule{baseRel: ".", ign: ign})
	}
	accumRel := ""
	for _, s := range splitPath(dirRel) {
		accumRel = filepath.Join(accumRel, s)
		if ign := compileIgnoreLines(readIgnoreLines(filepath.Join(m.root, accumRel, ".gitignore"))); ign != nil {
			r = append(r, rule{baseRel: accumRel, ign: ign})
		}
	}
	m.rules[dirRel] = r
	return r
}

// readIgnoreLines reads non-empty lines from a .gitignore file, ignoring comments.
func readIgnoreLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func compileIgnoreLines(lines []string) *ignore.GitIgnore {
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

// NormalizeSlash converts OS separators to forward slashes.
func NormalizeSlash(p string) string { return strings.ReplaceAll(p, string(filepath.Separator), "/") }

// ignoredByRules evaluates rules root-first; the last matching rule decides.
// Directories are also tested with a trailing slash so "dir/" patterns apply.
func ignoredByRules(rules []rule, relPath string, isDir bool) bool {
	relNorm := NormalizeSlash(relPath)
	ignored := false
	for _, r := range rules {
		p := relNorm
		if r.baseRel != "." {
			base := NormalizeSlash(r.baseRel) + "/"
			if !strings.HasPrefix(relNorm, base) {
				continue
			}
			p = strings.TrimPrefix(relNorm, base)
		}
		if p == "" || r.ign == nil {
			continue
		}
		if r.ign.MatchesPath(p) || (isDir && r.ign.MatchesPath(p+"/")) {
			ignored = true
		}
	}
	return ignored
}

func splitPath(p string) []string {
	p = NormalizeSlash(p)
	if p == "." || p == "" {
		return nil
	}
	segs := strings.Split(p, "/")
	if len(segs) > 0 && segs[0] == "." {
		segs = segs[1:]
	}
	return segs
}
