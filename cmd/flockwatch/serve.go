package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/flockwatch/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts polling and the dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling and the dashboard server",
	Long: `Start the flockwatch dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Poll the counting service immediately, then at the configured interval
  - Serve the dashboard UI and command API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Any config value can be overridden with a FLOCKWATCH_* environment
variable (FLOCKWATCH_PORT, FLOCKWATCH_API_URL, FLOCKWATCH_POLL_INTERVAL, ...).
The --port and --api-url flags take precedence over both.

Example:
  flockwatch serve -c config.yaml
  flockwatch serve --config /etc/flockwatch/config.yaml --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
	addOverrideFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(slog.LevelInfo)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"api_url", cfg.APIURL,
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval.Duration().String(),
		"timeout", cfg.Timeout.Duration().String(),
	)

	session, err := config.NewSession(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start session - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- session.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
