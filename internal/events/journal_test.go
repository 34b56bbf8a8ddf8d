package events

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_Missing(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "events.json"), zerolog.Nop())
	evs, err := j.Load()
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestJournal_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(filepath.Join(dir, "nested", "events.json"), zerolog.Nop())

	b, _, _ := newTestBus(t, 0)
	b.Emit(FileCreated{Metadata{SpaceID: "eng", Path: "a.md"}})
	b.Emit(FolderDeleted{Metadata{SpaceID: "eng", Path: "old"}})
	require.NoError(t, j.Save(b.Snapshot()))

	_, err := os.Stat(j.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))

	evs, err := j.Load()
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "file:create", evs[0].Event.Type)
	assert.Equal(t, "old", evs[1].Item.Path)
	assert.True(t, evs[0].Event.Timestamp.Equal(b.Snapshot()[0].Event.Timestamp))
}

func TestJournal_CorruptedIsBackedUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	j := NewJournal(path, zerolog.Nop())
	evs, err := j.Load()
	require.NoError(t, err)
	assert.Empty(t, evs)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "events.json.corrupted."))
}

func TestJournal_SkipsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	body := `{"version":"1.0","events":[
		{"event":{"id":"","timestamp":"2024-01-01T00:00:00Z"}},
		{"event":{"id":"x","timestamp":"0001-01-01T00:00:00Z"}},
		{"event":{"id":"ok","timestamp":"2024-01-01T00:00:00Z","type":"file:update"}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	evs, err := NewJournal(path, zerolog.Nop()).Load()
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "ok", evs[0].Event.ID)
}
