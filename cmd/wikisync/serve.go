package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/wikisync/internal/httpapi"
	"github.com/example/wikisync/internal/index"
	"github.com/example/wikisync/internal/watcher"
	"github.com/example/wikisync/internal/ws"
)

type connInfo struct {
	Addr  string `json:"addr"`
	Port  int    `json:"port"`
	Token string `json:"token"`
	WS    string `json:"ws"`
}

var printConn bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch spaces and serve search, diagnostics and real-time events",
	Long: `Start the space watcher, the websocket broadcaster and the HTTP API.

Endpoints:
  GET  /health                  liveness, no auth
  GET  /ws                      websocket, subprotocol auth.bearer.<token>
  GET  /api/search?q=...        search (category, space, limit, content)
  GET  /api/suggest?prefix=...  completions
  GET  /api/index/stats         index diagnostics
  POST /api/index/rebuild       full rebuild
  GET  /api/events/recent       recent change events
  GET  /api/events/stats        event statistics
  POST /api/events              emit an API-sourced change
  DELETE /api/events            clear event history

/api routes require "Authorization: Bearer <token>". Without http.token a
random token is generated and printed in the connection JSON.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().String("http", "", "HTTP listen address")
	serveCmd.Flags().BoolVar(&printConn, "print-conn-json", true, "print connection JSON to stdout on start")
	_ = v.BindPFlag("http.addr", serveCmd.Flags().Lookup("http"))
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.saveJournal()

	token := cfg.HTTP.Token
	if token == "" {
		token = randToken()
	}

	hub := ws.NewServer(token, logger)
	a.bus.SetPublisher(hub)
	ws.NewRouter(logger, a.index, a.bus, version).Attach(hub)

	api := httpapi.New(logger, a.index, a.bus, a.cache, a.cascade, a.resolver, httpapi.Options{
		Token:      token,
		SearchTTL:  cfg.Cache.SearchTTL,
		MaxResults: cfg.Index.MaxResults,
		WS:         http.HandlerFunc(hub.HandleWS),
	})

	w := watcher.New(logger, a.spaces, watcher.Deps{
		Cache:   a.cache,
		Cascade: a.cascade,
		Index:   a.index,
		Bus:     a.bus,
	}, watcher.Options{
		Debounce:     cfg.Watcher.Debounce,
		PrecacheTTL:  cfg.Watcher.PrecacheTTL,
		MaxWatchDirs: cfg.Watcher.MaxWatchDirs,
		MaxFileSize:  cfg.Index.MaxFileSize,
		Ignore:       cfg.Watcher.Ignore,
	})

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	srv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	if err := w.Start(gctx); err != nil {
		// search and diagnostics still work without live updates
		logger.Error().Err(err).Msg("watcher not started")
	}
	defer w.Close()

	if cfg.Index.RebuildOnStart {
		g.Go(func() error {
			if err := a.index.Build(gctx); err != nil && !errors.Is(err, index.ErrBuildInProgress) && gctx.Err() == nil {
				logger.Error().Err(err).Msg("initial index build failed")
			}
			return nil
		})
	}
	g.Go(func() error {
		a.cache.RunSweeper(gctx, cfg.Cache.SweepInterval)
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	port := ln.Addr().(*net.TCPAddr).Port
	info := connInfo{
		Addr:  ln.Addr().String(),
		Port:  port,
		Token: token,
		WS:    fmt.Sprintf("ws://%s/ws", ln.Addr().String()),
	}
	logger.Info().Str("addr", info.Addr).Msg("listening")
	if printConn {
		_ = json.NewEncoder(os.Stdout).Encode(info)
	}

	err = g.Wait()
	logger.Info().Msg("shutting down")
	return err
}
