package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/wikisync/internal/cache"
	"github.com/example/wikisync/internal/config"
	"github.com/example/wikisync/internal/events"
	"github.com/example/wikisync/internal/index"
	"github.com/example/wikisync/internal/space"
)

// app holds the components shared by every command.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	spaces   []space.Space
	resolver *space.Resolver
	index    *index.Indexer
	cache    *cache.Memory
	cascade  *cache.Cascade
	bus      *events.Bus
	journal  *events.Journal
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	spaces, err := loadSpaces(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ix := index.New(logger, index.Options{
		MaxFileSize: cfg.Index.MaxFileSize,
		Ignore:      cfg.Watcher.Ignore,
	})
	ix.SetSpaces(spaces)

	mem := cache.NewMemory()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		spaces:   spaces,
		resolver: space.NewResolver(spaces),
		index:    ix,
		cache:    mem,
		cascade:  cache.NewCascade(mem, logger),
		bus:      events.NewBus(logger, nil, cfg.Events.HistorySize),
	}
	if cfg.Events.Journal != "" {
		a.journal = events.NewJournal(cfg.Events.Journal, logger)
		evs, err := a.journal.Load()
		if err != nil {
			logger.Warn().Err(err).Msg("event journal not restored")
		}
		a.bus.Restore(evs)
	}
	logger.Info().Int("spaces", len(spaces)).Msg("spaces loaded")
	return a, nil
}

// loadSpaces merges the configured spaces with the data-manager collection.
// A configured space wins over a stored one with the same ID.
func loadSpaces(ctx context.Context, cfg config.Config) ([]space.Space, error) {
	var r space.DataReader = space.StaticReader(cfg.Spaces)
	if cfg.Data.Dir != "" {
		r = space.MultiReader{r, space.JSONStore{Dir: cfg.Data.Dir}}
	}
	all, err := space.Load(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("load spaces: %w", err)
	}
	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, s := range all {
		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		out = append(out, s)
	}
	return out, nil
}

// saveJournal persists the event history when a journal is configured.
func (a *app) saveJournal() {
	if a.journal == nil {
		return
	}
	if err := a.journal.Save(a.bus.Snapshot()); err != nil {
		a.logger.Error().Err(err).Msg("event journal not saved")
	}
}

func randToken() string {
	b := make([]byte, 24) // 192 bits
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
