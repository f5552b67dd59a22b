package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jpalmerr/flockwatch"
	"github.com/jpalmerr/flockwatch/config"
	"github.com/spf13/cobra"
)

// checkCmd runs one request against the counting service.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test connectivity to the counting service",
	Long: `Request the sheep count once and print the result.

The dashboard state is not involved; this only verifies that the service
configured in api_url is reachable and returns a usable count.

Exit codes:
  0 - The service answered with a valid count
  1 - The request failed or the payload had no usable count

Example:
  flockwatch check -c config.yaml`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = checkCmd.MarkFlagRequired("config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	session, err := loadSession(cmd, slog.LevelWarn)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), session.Timeout()+time.Second)
	defer cancel()

	res := session.Check(ctx)
	checked := time.Now()

	fmt.Printf("Endpoint: %s\n", res.URL)
	fmt.Printf("  Latency:     %s\n", res.Latency.Round(time.Millisecond))
	fmt.Printf("  Checked:     %s\n", humanize.Time(checked))
	if res.Err != nil {
		fmt.Printf("  Status:      FAILED\n")
		return fmt.Errorf("service check failed: %w", res.Err)
	}
	fmt.Printf("  Status:      OK\n")
	fmt.Printf("  Sheep count: %s\n", humanize.Comma(res.Count))
	return nil
}

// loadConfig reads the file named by --config and applies FLOCKWATCH_*
// environment variables and any override flags the command defines.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewOverrides()
	for key, flag := range overrideFlags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	return config.LoadWithOverrides(configFile, v)
}

// addOverrideFlags registers --port and --api-url on cmd.
func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().Int(overrideFlags[config.KeyPort], 0, "override the configured dashboard port")
	cmd.Flags().String(overrideFlags[config.KeyAPIURL], "", "override the configured api_url")
}

// overrideFlags maps config override keys to flag names.
var overrideFlags = map[string]string{
	config.KeyPort:   "port",
	config.KeyAPIURL: "api-url",
}

// loadSession reads the --config flag and builds a session without a
// dashboard.
func loadSession(cmd *cobra.Command, level slog.Level) (*flockwatch.Session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	session, err := config.NewSession(cfg, newLogger(level), flockwatch.WithoutDashboard())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}
