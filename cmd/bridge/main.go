// Command bridge operates a remote record-management back end on
// behalf of a conversational AI client through a JSON-RPC line
// protocol over standard input and output (spec §1).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/debug"
)

var (
	// Version is the bridge's release version, overridden by ldflags at
	// build time.
	Version = "0.1.0"
	// Build can be set via ldflags at compile time.
	Build = "dev"

	cfgPath      string
	cachePathFlg string
	jsonOutput   bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "bridge - a cached, query-capable gateway to a remote record-management workspace",
	Long: `bridge interposes a persistent, schema-aware cache between a conversational
AI client and a remote record-management backend, so repeated reads cost
nothing and complex filters execute locally.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		debug.SetQuiet(jsonOutput)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.toml (default ~/.ssbridge/config.toml)")
	rootCmd.PersistentFlags().StringVar(&cachePathFlg, "cache-path", "", "override the cache database path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON where applicable")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer func() {
		if rootCancel != nil {
			rootCancel()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
