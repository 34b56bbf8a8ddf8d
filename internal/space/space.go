// Package space models registered content roots and maps filesystem paths
// back to the space that owns them.
package space

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KindSpaces is the data-manager collection holding space records.
const KindSpaces = "spaces"

// ErrNoSpace is returned when no registered space owns a path.
var ErrNoSpace = errors.New("no space owns path")

// Space is a registered content root.
type Space struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
	Path string `json:"path" mapstructure:"path"`
}

// Key returns the identifier used in cache keys: the ID when set, else the name.
func (s Space) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// DataReader is the read side of the data-manager collaborator.
type DataReader interface {
	Read(ctx context.Context, kind string) ([]json.RawMessage, error)
}

// Load reads every space record and keeps those with a configured root path.
// Roots are made absolute and cleaned.
func Load(ctx context.Context, r DataReader) ([]Space, error) {
	records, err := r.Read(ctx, KindSpaces)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", KindSpaces, err)
	}
	out := make([]Space, 0, len(records))
	for i, raw := range records {
		var s Space
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode space record %d: %w", i, err)
		}
		if s.Path == "" {
			continue
		}
		out = append(out, Normalize(s))
	}
	return out, nil
}

// Normalize returns s with an absolute, cleaned root path and a name
// defaulted from the directory when empty.
func Normalize(s Space) Space {
	if abs, err := filepath.Abs(s.Path); err == nil {
		s.Path = abs
	}
	s.Path = filepath.Clean(s.Path)
	if s.Name == "" {
		s.Name = filepath.Base(s.Path)
	}
	if s.ID == "" {
		s.ID = s.Name
	}
	return s
}

// JSONStore is a file-backed data manager: each kind lives in <Dir>/<kind>.json
// as a JSON array.
type JSONStore struct {
	Dir string
}

// Read returns the records of kind. A missing file yields an empty list.
func (s JSONStore) Read(ctx context.Context, kind string) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, kind+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s.json: %w", kind, err)
	}
	return out, nil
}

// StaticReader serves a fixed list of spaces, typically from configuration.
type StaticReader []Space

func (r StaticReader) Read(ctx context.Context, kind string) ([]json.RawMessage, error) {
	if kind != KindSpaces {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(r))
	for _, s := range r {
		b, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// MultiReader concatenates the records of several readers.
type MultiReader []DataReader

func (m MultiReader) Read(ctx context.Context, kind string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, r := range m {
		recs, err := r.Read(ctx, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Resolver maps absolute paths to their owning space by longest root prefix.
type Resolver struct {
	spaces []Space // sorted by root length, longest first
}

// NewResolver builds a Resolver. Spaces are normalized first.
func NewResolver(spaces []Space) *Resolver {
	sorted := make([]Space, 0, len(spaces))
	for _, s := range spaces {
		sorted = append(sorted, Normalize(s))
	}
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Path) > len(sorted[j].Path) })
	return &Resolver{spaces: sorted}
}

// Spaces returns the registered spaces, longest root first.
func (r *Resolver) Spaces() []Space {
	out := make([]Space, len(r.spaces))
	copy(out, r.spaces)
	return out
}

// Resolve returns the owning space and the path relative to its root.
// The root itself resolves with rel ".".
func (r *Resolver) Resolve(absPath string) (Space, string, error) {
	p := filepath.Clean(absPath)
	for _, s := range r.spaces {
		if p == s.Path {
			return s, ".", nil
		}
		prefix := s.Path
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(p, prefix) {
			return s, p[len(prefix):], nil
		}
	}
	return Space{}, "", fmt.Errorf("%w: %s", ErrNoSpace, absPath)
}

// ByID returns the space with the given ID or name.
func (r *Resolver) ByID(idOrName string) (Space, bool) {
	for _, s := range r.spaces {
		if s.ID == idOrName || s.Name == idOrName {
			return s, true
		}
	}
	return Space{}, false
}

// ParentPath returns the slash-separated parent of rel, "" for top-level items.
func ParentPath(rel string) string {
	d := filepath.ToSlash(filepath.Dir(rel))
	if d == "." || d == "/" {
		return ""
	}
	return d
}
