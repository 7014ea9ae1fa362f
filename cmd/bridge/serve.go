package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cache"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/config"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/debug"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/executor"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/rpc"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/shaper"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "read JSON-RPC requests from stdin and write responses to stdout until EOF",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx

		mgr, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		defer func() { _ = mgr.Close() }()

		cfg := mgr.Current()
		cachePath := cfg.CachePath
		if cachePathFlg != "" {
			cachePath = cachePathFlg
		}

		store, err := cache.Open(ctx, cachePath)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer func() { _ = store.Close() }()

		shutdown := telemetry.Init(ctx, "smartsuite-bridge", os.Stderr)
		defer func() { _ = shutdown(ctx) }()

		fetcher, err := newUpstreamFetcher(cfg)
		if err != nil {
			return fmt.Errorf("configure upstream: %w", err)
		}

		exec := &executor.Executor{
			Cache:                  store,
			Fetcher:                fetcher,
			DefaultTTL:             time.Duration(cfg.DefaultTTLSeconds) * time.Second,
			StrictFilterValidation: cfg.StrictFilterValidation,
			MaxFuzzyEditsShort:     cfg.MaxFuzzyEditsShort,
			MaxFuzzyEditsLong:      cfg.MaxFuzzyEditsLong,
		}

		var summarizer shaper.Summarizer
		if s, err := shaper.NewAnthropicSummarizer("", ""); err == nil {
			summarizer = s
		}

		dispatcher := &rpc.Dispatcher{
			Executor:   exec,
			Cache:      store,
			Tables:     &rpc.CacheTableResolver{Cache: store, Fetcher: fetcher, SchemaTTL: time.Duration(cfg.DefaultTTLSeconds) * time.Second},
			Config:     mgr,
			Summarizer: summarizer,
			StartedAt:  time.Now(),
			Metrics:    rpc.NewMetrics(),
		}

		debug.PrintlnNormal("bridge serving JSON-RPC on stdio")
		return rpc.Serve(ctx, dispatcher, os.Stdin, os.Stdout)
	},
}
