// Package config loads wikisync settings from a config file, WIKISYNC_*
// environment variables and built-in defaults, in that order of precedence
// after explicit flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/wikisync/internal/space"
)

const EnvPrefix = "WIKISYNC"

type HTTP struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`
}

type Data struct {
	// Dir holds the data-manager collections, e.g. spaces.json.
	Dir string `mapstructure:"dir"`
}

type Watcher struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	PrecacheTTL  time.Duration `mapstructure:"precache_ttl"`
	MaxWatchDirs int           `mapstructure:"max_watch_dirs"`
	Ignore       []string      `mapstructure:"ignore"`
}

type Index struct {
	MaxResults     int   `mapstructure:"max_results"`
	MaxFileSize    int64 `mapstructure:"max_file_size"`
	RebuildOnStart bool  `mapstructure:"rebuild_on_start"`
}

type Events struct {
	HistorySize int    `mapstructure:"history_size"`
	Journal     string `mapstructure:"journal"`
}

type Cache struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SearchTTL     time.Duration `mapstructure:"search_ttl"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // auto, console or json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type Config struct {
	HTTP    HTTP          `mapstructure:"http"`
	Data    Data          `mapstructure:"data"`
	Spaces  []space.Space `mapstructure:"spaces"`
	Watcher Watcher       `mapstructure:"watcher"`
	Index   Index         `mapstructure:"index"`
	Events  Events        `mapstructure:"events"`
	Cache   Cache         `mapstructure:"cache"`
	Log     Log           `mapstructure:"log"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{Addr: "127.0.0.1:8787"},
		Watcher: Watcher{
			Debounce:     time.Second,
			PrecacheTTL:  1800 * time.Second,
			MaxWatchDirs: 8192,
		},
		Index: Index{
			MaxResults:     50,
			MaxFileSize:    5 << 20,
			RebuildOnStart: true,
		},
		Events: Events{HistorySize: 1000},
		Cache: Cache{
			SweepInterval: time.Minute,
			SearchTTL:     5 * time.Minute,
		},
		Log: Log{
			Level:      "info",
			Format:     "auto",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.token", d.HTTP.Token)
	v.SetDefault("data.dir", d.Data.Dir)
	v.SetDefault("spaces", []map[string]any{})
	v.SetDefault("watcher.debounce", d.Watcher.Debounce)
	v.SetDefault("watcher.precache_ttl", d.Watcher.PrecacheTTL)
	v.SetDefault("watcher.max_watch_dirs", d.Watcher.MaxWatchDirs)
	v.SetDefault("watcher.ignore", []string{})
	v.SetDefault("index.max_results", d.Index.MaxResults)
	v.SetDefault("index.max_file_size", d.Index.MaxFileSize)
	v.SetDefault("index.rebuild_on_start", d.Index.RebuildOnStart)
	v.SetDefault("events.history_size", d.Events.HistorySize)
	v.SetDefault("events.journal", d.Events.Journal)
	v.SetDefault("cache.sweep_interval", d.Cache.SweepInterval)
	v.SetDefault("cache.search_ttl", d.Cache.SearchTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// NewViper returns a viper instance with defaults and environment binding.
// Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (any format viper understands) into v and decodes the
// result. An empty path searches ./wikisync.* and the user config dir; not
// finding a file there is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wikisync")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "wikisync"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	for i, s := range cfg.Spaces {
		if s.Path != "" {
			cfg.Spaces[i] = space.Normalize(s)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if c.Watcher.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("watcher.debounce must be positive, got %s", c.Watcher.Debounce))
	}
	if c.Watcher.PrecacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("watcher.precache_ttl must be positive, got %s", c.Watcher.PrecacheTTL))
	}
	if c.Watcher.MaxWatchDirs <= 0 {
		errs = append(errs, fmt.Errorf("watcher.max_watch_dirs must be positive, got %d", c.Watcher.MaxWatchDirs))
	}
	if c.Index.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("index.max_results must be positive, got %d", c.Index.MaxResults))
	}
	if c.Index.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("index.max_file_size must be positive, got %d", c.Index.MaxFileSize))
	}
	if c.Events.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("events.history_size must be positive, got %d", c.Events.HistorySize))
	}
	if c.Cache.SearchTTL < 0 || c.Cache.SweepInterval < 0 {
		errs = append(errs, errors.New("cache durations must not be negative"))
	}
	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be auto, console or json, got %q", c.Log.Format))
	}
	seen := make(map[string]bool)
	for i, s := range c.Spaces {
		if s.Path == "" {
			errs = append(errs, fmt.Errorf("spaces[%d]: path is required", i))
			continue
		}
		if seen[s.Key()] {
			errs = append(errs, fmt.Errorf("spaces[%d]: duplicate id %q", i, s.Key()))
		}
		seen[s.Key()] = true
	}
	return errors.Join(errs...)
}
