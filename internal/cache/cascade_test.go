package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wikisync/internal/space"
)

var eng = space.Space{ID: "eng", Name: "Engineering", Path: "/srv/eng"}

func TestCascade_Keys(t *testing.T) {
	c := NewCascade(NewMemory(), zerolog.Nop())
	keys := c.Keys(eng, "folder/sub/doc.md")

	for _, want := range []string{
		"Engineering-folder/sub/doc.md",
		"wiki:folder:eng:folder/sub",
		"wiki:folder:eng:folder",
		"wiki:folder:eng:",
		"wiki:folder:Engineering:folder/sub",
		"wiki:folder:Engineering:",
		KeyDocumentsList,
		KeyRecentModified,
		KeyRecentActivity,
		"wiki:space:eng:documents",
		"wiki:space:Engineering:documents",
	} {
		assert.Contains(t, keys, want)
	}

	seen := map[string]bool{}
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}

func TestCascade_KeysSameIDAndName(t *testing.T) {
	sp := space.Space{ID: "docs", Name: "docs"}
	keys := NewCascade(NewMemory(), zerolog.Nop()).Keys(sp, "a.md")
	assert.Equal(t, sorted([]string{
		"docs-a.md",
		"wiki:folder:docs:a.md",
		"wiki:folder:docs:",
		KeyDocumentsList,
		KeyRecentModified,
		KeyRecentActivity,
		"wiki:space:docs:documents",
	}), sorted(keys))
}

func TestCascade_InvalidateEvictsEverything(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rel := "folder/sub/doc.md"
	depth := 3

	c := NewCascade(m, zerolog.Nop())
	for _, k := range c.Keys(eng, rel) {
		require.NoError(t, m.Put(ctx, k, "cached", time.Hour))
	}
	require.NoError(t, m.Put(ctx, SearchKey("abc"), "[]", time.Hour))
	require.NoError(t, m.Put(ctx, SearchKey("def"), "[]", time.Hour))
	require.NoError(t, m.Put(ctx, KeySpacesList, "keep", time.Hour))
	require.NoError(t, m.Put(ctx, ContentKey(eng.Name, "other.md"), "keep", time.Hour))

	evicted := c.Invalidate(ctx, eng, rel)
	assert.GreaterOrEqual(t, len(evicted), depth+2)
	assert.ElementsMatch(t, []string{KeySpacesList, ContentKey(eng.Name, "other.md")}, m.Keys())
}

type failingCache struct {
	*Memory
	fail string
}

func (f failingCache) Delete(ctx context.Context, key string) error {
	if strings.HasPrefix(key, f.fail) {
		return errors.New("backend down")
	}
	return f.Memory.Delete(ctx, key)
}

func TestCascade_FailuresAreWarnings(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	fc := failingCache{Memory: NewMemory(), fail: "wiki:folder:"}
	require.NoError(t, fc.Put(ctx, KeyDocumentsList, "x", 0))

	c := NewCascade(fc, logger)
	evicted := c.Invalidate(ctx, eng, "doc.md")

	assert.Contains(t, evicted, KeyDocumentsList)
	for _, k := range evicted {
		assert.False(t, strings.HasPrefix(k, "wiki:folder:"))
	}
	_, err := fc.Get(ctx, KeyDocumentsList)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "backend down")
}

type plainCache struct{ m *Memory }

func (p plainCache) Get(ctx context.Context, k string) (string, error) { return p.m.Get(ctx, k) }
func (p plainCache) Put(ctx context.Context, k, v string, ttl time.Duration) error {
	return p.m.Put(ctx, k, v, ttl)
}
func (p plainCache) Delete(ctx context.Context, k string) error { return p.m.Delete(ctx, k) }

func TestCascade_WithoutPatternSupport(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, SearchKey("abc"), "[]", 0))

	NewCascade(plainCache{m}, zerolog.Nop()).Invalidate(ctx, eng, "doc.md")
	_, err := m.Get(ctx, SearchKey("abc"))
	assert.NoError(t, err)
}
