package index

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wikisync/internal/fileutil"
	"github.com/example/wikisync/internal/space"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestIndexer(t *testing.T, spaces ...space.Space) *Indexer {
	t.Helper()
	ix := New(zerolog.Nop(), Options{})
	ix.SetSpaces(spaces)
	return ix
}

// tokenSnapshot copies the token map for comparisons.
func (ix *Indexer) tokenSnapshot() map[string][]string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string][]string, len(ix.st.tokens))
	for tok, set := range ix.st.tokens {
		for k := range set {
			out[tok] = append(out[tok], k)
		}
	}
	return out
}

func TestBuild_SearchHello(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "notes.md"), "Hello World")
	ix := newTestIndexer(t, space.Space{ID: "s1", Name: "Wiki", Path: root})

	require.NoError(t, ix.Build(context.Background()))

	res := ix.Search("hello", SearchOptions{})
	require.Len(t, res, 1)
	assert.Equal(t, "notes.md", res[0].Path)
	assert.Greater(t, res[0].Score, 0.0)
	assert.Equal(t, "Hello World", res[0].Excerpt)

	assert.Empty(t, ix.Search("xyz", SearchOptions{}))
}

func TestSearch_MinimumQueryLength(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ab.txt"), "ab a")
	ix := newTestIndexer(t, space.Space{ID: "s1", Name: "Wiki", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	assert.NotEmpty(t, ix.Search("ab", SearchOptions{}))
	assert.Empty(t, ix.Search("a", SearchOptions{}))
	assert.Empty(t, ix.Search(" ", SearchOptions{}))
}

func TestSearch_SameNameInTwoSpaces(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(rootA, "report.md"), "quarterly numbers")
	writeFile(t, filepath.Join(rootB, "report.md"), "incident review")
	ix := newTestIndexer(t,
		space.Space{ID: "a", Name: "Finance", Path: rootA},
		space.Space{ID: "b", Name: "Ops", Path: rootB},
	)
	require.NoError(t, ix.Build(context.Background()))

	res := ix.Search("report", SearchOptions{})
	require.Len(t, res, 2)
	got := map[string]string{}
	for _, r := range res {
		got[r.SpaceName] = r.Path
	}
	assert.Equal(t, map[string]string{"Finance": "report.md", "Ops": "report.md"}, got)
}

func TestSearch_FilenameMatchOutranksBody(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "kubernetes.txt"), "cluster setup")
	writeFile(t, filepath.Join(root, "other.txt"), "we run kubernetes in prod")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	res := ix.Search("kubernetes", SearchOptions{})
	require.Len(t, res, 2)
	assert.Equal(t, "kubernetes.txt", res[0].Path)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestSearch_ScoringWeights(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "alpha")
	writeFile(t, filepath.Join(root, "b.txt"), "alpha")
	writeFile(t, filepath.Join(root, "c.json"), `{"k":"alpha"}`)
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	scores := map[string]float64{}
	for _, r := range ix.Search("alpha", SearchOptions{}) {
		scores[r.Path] = r.Score
	}
	assert.Equal(t, 3.0, scores["a.md"])
	assert.Equal(t, 2.0, scores["b.txt"])
	assert.Equal(t, 1.0, scores["c.json"])
}

func TestSearch_CommonTokenDamping(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 11; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%02d.json", i)), `"common"`)
	}
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	res := ix.Search("common", SearchOptions{MaxResults: 100})
	require.Len(t, res, 11)
	for _, r := range res {
		assert.InDelta(t, 0.7, r.Score, 1e-9)
	}
}

func TestSearch_FiltersAndCap(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(rootA, "plan.md"), "roadmap")
	writeFile(t, filepath.Join(rootA, "plan.txt"), "roadmap")
	writeFile(t, filepath.Join(rootB, "plan.md"), "roadmap")
	ix := newTestIndexer(t,
		space.Space{ID: "a", Name: "A", Path: rootA},
		space.Space{ID: "b", Name: "B", Path: rootB},
	)
	require.NoError(t, ix.Build(context.Background()))

	res := ix.Search("roadmap", SearchOptions{Categories: []fileutil.Category{fileutil.CategoryText}})
	require.Len(t, res, 1)
	assert.Equal(t, "plan.txt", res[0].Path)

	res = ix.Search("roadmap", SearchOptions{Spaces: []string{"b"}})
	require.Len(t, res, 1)
	assert.Equal(t, "B", res[0].SpaceName)

	res = ix.Search("roadmap", SearchOptions{Spaces: []string{"A"}})
	assert.Len(t, res, 2)

	assert.Len(t, ix.Search("roadmap", SearchOptions{MaxResults: 2}), 2)
}

func TestSearch_IncludeContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "doc.md"), "full body text")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	assert.Empty(t, ix.Search("body", SearchOptions{})[0].Content)
	assert.Equal(t, "full body text", ix.Search("body", SearchOptions{IncludeContent: true})[0].Content)
}

func TestIndexFile_NonTextIndexesNameOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "diagram.png"), "secretword")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	assert.Empty(t, ix.Search("secretword", SearchOptions{}))
	res := ix.Search("diagram", SearchOptions{})
	require.Len(t, res, 1)
	assert.Equal(t, fileutil.CategoryImage, res[0].Category)
	assert.Empty(t, res[0].Excerpt)
}

func TestRemoveFile_Symmetric(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.md"), "shared words here")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))
	before := ix.tokenSnapshot()

	p := filepath.Join(root, "docs", "extra.md")
	writeFile(t, p, "shared unique-token words")
	sp := space.Space{ID: "s", Name: "S", Path: root}
	f, err := ix.IndexFile(sp, p)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.NotEqual(t, before, ix.tokenSnapshot())

	assert.True(t, ix.RemoveFile("s", filepath.Join("docs", "extra.md")))
	assert.Equal(t, before, ix.tokenSnapshot())
	assert.False(t, ix.RemoveFile("s", filepath.Join("docs", "extra.md")))
}

func TestUpdateFile_DropsStaleTokens(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "page.md")
	writeFile(t, p, "original content")
	sp := space.Space{ID: "s", Name: "S", Path: root}
	ix := newTestIndexer(t, sp)
	require.NoError(t, ix.Build(context.Background()))
	require.Len(t, ix.Search("original", SearchOptions{}), 1)

	writeFile(t, p, "rewritten content")
	require.NoError(t, ix.UpdateFile(sp, p))

	assert.Empty(t, ix.Search("original", SearchOptions{}))
	assert.Len(t, ix.Search("rewritten", SearchOptions{}), 1)
	_, stale := ix.tokenSnapshot()["original"]
	assert.False(t, stale)
}

func TestUpdateFile_MissingFileIsRemoved(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "gone.md")
	writeFile(t, p, "ephemeral")
	sp := space.Space{ID: "s", Name: "S", Path: root}
	ix := newTestIndexer(t, sp)
	require.NoError(t, ix.Build(context.Background()))

	require.NoError(t, os.Remove(p))
	require.NoError(t, ix.UpdateFile(sp, p))
	assert.Empty(t, ix.Search("ephemeral", SearchOptions{}))
	assert.Zero(t, ix.Stats().TotalFiles)
}

func TestRemoveTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "folder", "a.md"), "x1")
	writeFile(t, filepath.Join(root, "folder", "sub", "b.md"), "x2")
	writeFile(t, filepath.Join(root, "folder-two", "c.md"), "x3")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	assert.Equal(t, 2, ix.RemoveTree("s", "folder"))
	assert.Equal(t, 1, ix.Stats().TotalFiles)
	_, ok := ix.File("s", filepath.Join("folder-two", "c.md"))
	assert.True(t, ok)
}

func TestIndexTree(t *testing.T) {
	root := t.TempDir()
	sp := space.Space{ID: "s", Name: "S", Path: root}
	ix := newTestIndexer(t, sp)
	require.NoError(t, ix.Build(context.Background()))

	writeFile(t, filepath.Join(root, "new", "one.md"), "fresh")
	writeFile(t, filepath.Join(root, "new", "deep", "two.md"), "fresh")
	writeFile(t, filepath.Join(root, "new", ".DS_Store"), "junk")

	assert.Equal(t, 2, ix.IndexTree(sp, filepath.Join(root, "new")))
	assert.Len(t, ix.Search("fresh", SearchOptions{}), 2)
}

func TestBuild_SkipsNoiseAndGitignored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".git", "config"), "gitstuff")
	writeFile(t, filepath.Join(root, ".gitignore"), "private/\n")
	writeFile(t, filepath.Join(root, "private", "secret.md"), "hidden")
	writeFile(t, filepath.Join(root, "public.md"), "visible")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))

	assert.Empty(t, ix.Search("hidden", SearchOptions{}))
	assert.Empty(t, ix.Search("gitstuff", SearchOptions{}))
	assert.Len(t, ix.Search("visible", SearchOptions{}), 1)
}

func TestBuild_SkipsUnreadableFiles(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.md"), "readable")
	bad := filepath.Join(root, "locked.md")
	writeFile(t, bad, "unreadable")
	require.NoError(t, os.Chmod(bad, 0o000))
	t.Cleanup(func() { _ = os.Chmod(bad, 0o644) })

	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))
	assert.Len(t, ix.Search("readable", SearchOptions{}), 1)
	assert.Equal(t, 1, ix.Stats().TotalFiles)
}

func TestBuild_DropsOverlappingRequest(t *testing.T) {
	ix := newTestIndexer(t)
	ix.building.Store(true)
	assert.ErrorIs(t, ix.Build(context.Background()), ErrBuildInProgress)
	ix.building.Store(false)
	assert.NoError(t, ix.Build(context.Background()))
}

func TestBuild_IncrementalChangesWaitForSwap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 40; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("dir%d/page%d.md", i%4, i)), "filler text")
	}
	target := filepath.Join(root, "target.md")
	writeFile(t, target, "original draft")
	gone := filepath.Join(root, "gone.md")
	writeFile(t, gone, "obsolete memo")
	sp := space.Space{ID: "s1", Name: "Wiki", Path: root}
	ix := newTestIndexer(t, sp)

	walked := make(chan struct{})
	release := make(chan struct{})
	ix.beforeSwap = func() {
		close(walked)
		<-release
	}

	built := make(chan error, 1)
	go func() { built <- ix.Build(context.Background()) }()
	select {
	case <-walked:
	case <-time.After(5 * time.Second):
		t.Fatal("build never finished walking")
	}
	assert.True(t, ix.Building())

	writeFile(t, target, "revised manuscript")
	updated := make(chan error, 1)
	go func() { updated <- ix.UpdateFile(sp, target) }()
	removed := make(chan bool, 1)
	go func() { removed <- ix.RemoveFile(sp.ID, "gone.md") }()

	select {
	case <-updated:
		t.Fatal("update applied while the build held the writer lock")
	case <-removed:
		t.Fatal("remove applied while the build held the writer lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-built)
	require.NoError(t, <-updated)
	assert.True(t, <-removed)

	res := ix.Search("manuscript", SearchOptions{})
	require.Len(t, res, 1)
	assert.Equal(t, "target.md", res[0].Path)
	assert.Empty(t, ix.Search("draft", SearchOptions{}))
	assert.Empty(t, ix.Search("memo", SearchOptions{}))
	assert.Equal(t, 41, ix.Stats().TotalFiles)
	assert.False(t, ix.Building())
}

func TestUpdateFile_UnchangedContentKeepsTokens(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "notes.md")
	writeFile(t, p, "stable content")
	sp := space.Space{ID: "s1", Name: "Wiki", Path: root}
	var buf bytes.Buffer
	ix := New(zerolog.New(&buf).Level(zerolog.DebugLevel), Options{})
	ix.SetSpaces([]space.Space{sp})

	require.NoError(t, ix.UpdateFile(sp, p))
	before, ok := ix.File("s1", "notes.md")
	require.True(t, ok)
	require.NotZero(t, before.ContentHash)
	assert.NotContains(t, buf.String(), "content unchanged")

	later := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(p, later, later))
	require.NoError(t, ix.UpdateFile(sp, p))
	after, ok := ix.File("s1", "notes.md")
	require.True(t, ok)
	assert.Equal(t, before.ContentHash, after.ContentHash)
	assert.True(t, after.Modified.Equal(later))
	assert.Contains(t, buf.String(), "content unchanged")
	assert.Len(t, ix.Search("stable", SearchOptions{}), 1)

	writeFile(t, p, "fresh content")
	require.NoError(t, ix.UpdateFile(sp, p))
	changed, ok := ix.File("s1", "notes.md")
	require.True(t, ok)
	assert.NotEqual(t, before.ContentHash, changed.ContentHash)
	assert.Len(t, ix.Search("fresh", SearchOptions{}), 1)
	assert.Empty(t, ix.Search("stable", SearchOptions{}))
}

func TestBuild_ReplacesPreviousState(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "a.md")
	writeFile(t, p, "first")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	require.NoError(t, ix.Build(context.Background()))
	require.NoError(t, os.Remove(p))
	require.NoError(t, ix.Build(context.Background()))

	assert.Empty(t, ix.Search("first", SearchOptions{}))
	assert.Empty(t, ix.tokenSnapshot())
}

func TestBuild_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "x")
	ix := newTestIndexer(t, space.Space{ID: "s", Name: "S", Path: root})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ix.Build(ctx), context.Canceled)
	assert.False(t, ix.Building())
}

func TestStats(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(rootA, "a.md"), "alpha")
	writeFile(t, filepath.Join(rootA, "img.png"), "x")
	writeFile(t, filepath.Join(rootB, "b.txt"), "beta")
	ix := newTestIndexer(t,
		space.Space{ID: "a", Name: "A", Path: rootA},
		space.Space{ID: "b", Name: "B", Path: rootB},
	)
	require.NoError(t, ix.Build(context.Background()))

	st := ix.Stats()
	assert.Equal(t, 3, st.TotalFiles)
	assert.Equal(t, 2, st.IndexedFiles)
	assert.Positive(t, st.TotalTokens)
	assert.False(t, st.LastBuild.IsZero())
	assert.False(t, st.Building)
	assert.Equal(t, map[string]int{"markdown": 1, "image": 1, "text": 1}, st.ByCategory)
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, st.BySpace)
}
