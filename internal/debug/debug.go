// Package debug provides gated stderr trace output plus quiet/verbose
// stdout helpers, matching the teacher's package-level, env-var-gated
// debug logging shape rather than a structured logging library (spec
// SPEC_FULL A.1). OpenTelemetry (internal/telemetry) carries structured
// span/metric data; this package carries human-readable stderr traces
// for local debugging.
package debug

import (
	"fmt"
	"os"
)

var (
	enabled     = os.Getenv("SSBRIDGE_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether gated debug output is on, either via the
// SSBRIDGE_DEBUG environment variable or SetVerbose(true).
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output).
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet reports whether quiet mode is enabled.
func IsQuiet() bool {
	return quietMode
}

// Logf writes a gated trace line to stderr: RPC request/response
// tracing and cache hit/miss events log through here.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Printf writes a gated trace line to stdout.
func Printf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Printf(format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled. Use this for
// normal informational output that should be suppressed in quiet mode.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled.
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
