package main

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Commit and Branch record the git revision the binary was built from
// (optional ldflags, same convention as Version/Build in main.go).
var (
	Commit = ""
	Branch = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print bridge version information",
	Run: func(cmd *cobra.Command, args []string) {
		commit := resolveCommit()

		if jsonOutput {
			out, _ := json.MarshalIndent(map[string]string{
				"version": Version,
				"build":   Build,
				"commit":  commit,
			}, "", "  ")
			fmt.Println(string(out))
			return
		}

		if commit != "" {
			fmt.Printf("bridge version %s (%s: %s)\n", Version, Build, shortCommit(commit))
		} else {
			fmt.Printf("bridge version %s (%s)\n", Version, Build)
		}
	},
}

func resolveCommit() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
