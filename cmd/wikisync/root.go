package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/wikisync/internal/config"
	"github.com/example/wikisync/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	v        = config.NewViper()
	cfg      config.Config
	logger   = zerolog.Nop()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "wikisync",
	Short: "Watch wiki spaces, index them and broadcast changes",
	Long: `wikisync watches the directories of registered wiki spaces, keeps an
in-memory inverted index of their files, invalidates dependent cache entries
and broadcasts normalized change events over a websocket.

Configuration is read from --config, ./wikisync.yaml or the user config dir,
and can be overridden with WIKISYNC_* environment variables
(e.g. WIKISYNC_HTTP_ADDR).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		if cfg, err = config.Load(v, cfgFile); err != nil {
			return err
		}
		logger, closeLog, err = logging.New(logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (yaml, toml or json)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (auto, console, json)")
	pf.String("data-dir", "", "data-manager directory holding spaces.json")
	// explicitly set flags override the config file and environment
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = v.BindPFlag("data.dir", pf.Lookup("data-dir"))
}
