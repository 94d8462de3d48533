// Package main is the entry point for the heartbeat-agent CLI.
//
// Usage:
//
//	heartbeat-agent run -c configs/config.yaml      # Start the agent
//	heartbeat-agent validate -c configs/config.yaml # Validate configuration
//	heartbeat-agent version                         # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via ldflags, e.g. -X main.version=1.0.0
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "heartbeat-agent",
	Short: "Pulse monitor, heartbeat sender and system sensors",
	Long: `heartbeat-agent watches monitored sources for pulses and alerts when one
goes quiet, reports this host alive to the HausNet heartbeat service and
publishes system sensor readings.

Quick start:
  1. Create a config file (configs/config.yaml)
  2. Run: heartbeat-agent validate -c configs/config.yaml
  3. Run: heartbeat-agent run -c configs/config.yaml`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("heartbeat-agent %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
