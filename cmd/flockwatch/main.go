// Package main is the entry point for the flockwatch CLI.
//
// Flockwatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	flockwatch serve -c config.yaml        # Start polling and the dashboard
//	flockwatch validate -c config.yaml     # Validate configuration
//	flockwatch check -c config.yaml        # Test connectivity once
//	flockwatch send -c config.yaml start   # Send a device command
//	flockwatch version                     # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "flockwatch",
	Short: "Live sheep count dashboard and device control",
	Long: `Flockwatch polls a sheep-counting service and shows the count live.

It reads the count from GET {api_url}/api/count at a fixed interval and
serves a dashboard with start/stop controls for the counting device.

Quick start:
  1. Create a config file (flockwatch.yaml)
  2. Run: flockwatch serve -c flockwatch.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  title: North Paddock
  api_url: ${API_URL}
  poll_interval: 2s
  timeout: 5s`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this flockwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flockwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
