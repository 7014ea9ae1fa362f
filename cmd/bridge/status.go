package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cache"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/config"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/rpc"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "report cache health and per-entity-class counts without starting the RPC loop",
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

		classStatus, err := store.Status(ctx, cfg.DefaultTTLSeconds)
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}

		report := rpc.StatusResponse{
			CachePath:         cachePath,
			DefaultTTLSeconds: cfg.DefaultTTLSeconds,
			UptimeSeconds:     0,
			EntityClassStatus: classStatus,
		}

		format := statusFormat
		if jsonOutput {
			format = "json"
		}

		switch format {
		case "yaml":
			out, err := yaml.Marshal(report)
			if err != nil {
				return fmt.Errorf("encode status as yaml: %w", err)
			}
			fmt.Print(string(out))
		case "json":
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encode status as json: %w", err)
			}
			fmt.Println(string(out))
		default:
			fmt.Printf("cache:    %s\n", report.CachePath)
			fmt.Printf("ttl:      %ds default\n", report.DefaultTTLSeconds)
			for _, st := range report.EntityClassStatus {
				expiry := "-"
				if st.NextToExpire != nil {
					expiry = st.NextToExpire.Format(time.RFC3339)
				}
				fmt.Printf("  %-16s %6d   ttl %5ds   next expiry %s\n", st.Class, st.Count, st.TTLSeconds, expiry)
			}
		}
		_ = time.Now // uptime is only meaningful for a running serve process
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format: table, json, or yaml")
}
