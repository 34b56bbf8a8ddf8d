package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const journalVersion = "1.0"

type journalFile struct {
	Version string        `json:"version"`
	Events  []ChangeEvent `json:"events"`
}

// Journal persists the event history to a JSON file so that it survives
// restarts.
type Journal struct {
	path   string
	logger zerolog.Logger
}

func NewJournal(path string, logger zerolog.Logger) *Journal {
	return &Journal{path: path, logger: logger.With().Str("component", "journal").Logger()}
}

func (j *Journal) Path() string { return j.path }

// Load reads the journal. A missing or empty file yields no events. A
// corrupted file is moved aside and yields no events. Entries without an ID
// or timestamp are skipped.
func (j *Journal) Load() ([]ChangeEvent, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		j.logger.Debug().Str("path", j.path).Msg("journal does not exist, starting empty")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", j.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var jf journalFile
	if err := json.Unmarshal(data, &jf); err != nil {
		j.logger.Warn().Err(err).Str("path", j.path).Msg("journal corrupted")
		if backup, berr := j.backupCorrupted(); berr != nil {
			j.logger.Error().Err(berr).Msg("journal backup failed")
		} else {
			j.logger.Info().Str("backup", backup).Msg("corrupted journal moved aside")
		}
		return nil, nil
	}

	valid := make([]ChangeEvent, 0, len(jf.Events))
	for _, ev := range jf.Events {
		if ev.valid() {
			valid = append(valid, ev)
		}
	}
	if skipped := len(jf.Events) - len(valid); skipped > 0 {
		j.logger.Warn().Int("skipped", skipped).Msg("journal contained invalid entries")
	}
	j.logger.Info().Int("events", len(valid)).Str("path", j.path).Msg("journal loaded")
	return valid, nil
}

// Save atomically replaces the journal with evs.
func (j *Journal) Save(evs []ChangeEvent) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	if evs == nil {
		evs = []ChangeEvent{}
	}
	data, err := json.MarshalIndent(journalFile{Version: journalVersion, Events: evs}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			j.logger.Warn().Err(rmErr).Str("path", tmp).Msg("failed to clean up temp journal")
		}
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	j.logger.Debug().Int("events", len(evs)).Int("bytes", len(data)).Msg("journal written")
	return nil
}

func (j *Journal) backupCorrupted() (string, error) {
	base := fmt.Sprintf("%s.corrupted.%d", j.path, time.Now().Unix())
	backup := base
	for i := 2; ; i++ {
		if _, err := os.Stat(backup); errors.Is(err, fs.ErrNotExist) {
			break
		}
		if i > 100 {
			return "", errors.New("too many journal backups")
		}
		backup = fmt.Sprintf("%s.%d", base, i)
	}
	if err := os.Rename(j.path, backup); err != nil {
		return "", fmt.Errorf("backup journal: %w", err)
	}
	return backup, nil
}
