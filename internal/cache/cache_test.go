package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "k", "v", 0))

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, m.Delete(ctx, "k"))
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Put(ctx, "short", "x", time.Second))
	require.NoError(t, m.Put(ctx, "long", "y", time.Hour))

	now = now.Add(2 * time.Second)
	_, err := m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
	v, err := m.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "y", v)
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	require.NoError(t, m.Put(ctx, "a", "1", time.Second))
	require.NoError(t, m.Put(ctx, "b", "2", 0))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, []string{"b"}, m.Keys())
}

func TestMemory_DeletePattern(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{SearchKey("abc"), SearchKey("def"), KeyDocumentsList} {
		require.NoError(t, m.Put(ctx, k, "x", 0))
	}
	n, err := m.DeletePattern(ctx, SearchPattern)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{KeyDocumentsList}, m.Keys())

	_, err = m.DeletePattern(ctx, "wiki:[")
	assert.Error(t, err)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	assert.ErrorIs(t, m.Put(ctx, "k", "v", 0), context.Canceled)
}

func TestMemory_RunSweeperStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewMemory().RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"folder/sub", "folder", ""}, Ancestors("folder/sub/doc.md"))
	assert.Equal(t, []string{""}, Ancestors("doc.md"))
	assert.Empty(t, Ancestors(""))
}

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "Eng-folder/doc.md", ContentKey("Eng", "folder/doc.md"))
	assert.Equal(t, "wiki:folder:eng:folder/sub", FolderKey("eng", "folder/sub/"))
	assert.Equal(t, "wiki:folder:eng:", FolderKey("eng", "."))
	assert.Equal(t, "wiki:space:eng:documents", SpaceDocumentsKey("eng"))
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
