package flockwatch

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// sessionConfig holds mutable state during Session construction.
type sessionConfig struct {
	title           string
	pollingInterval time.Duration
	timeout         time.Duration
	port            int
	countField      string
	dashboard       bool
	logger          *slog.Logger
	pollCallbacks   []func(PollResult)
}

// Option is a function that configures a [Session] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*sessionConfig) error

// WithPollingInterval sets how often the count endpoint is polled.
//
// Ticks that fire while a poll is still in flight are dropped, so a slow
// service is never polled concurrently. Defaults to 2 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithTimeout sets the per-request timeout used for polls, checks and
// commands. A request that times out fails as a network error.
// Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server.
//
// The dashboard UI and API will be available at http://localhost:<port>.
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *sessionConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the session.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *sessionConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "Flockwatch".
func WithTitle(title string) Option {
	return func(cfg *sessionConfig) error {
		cfg.title = title
		return nil
	}
}

// WithCountField sets the payload field holding the count, using dot notation
// for nested objects (e.g. "data.sheep_count"). Defaults to "sheep_count".
//
// Returns an error if the path is empty or has an empty segment.
func WithCountField(path string) Option {
	return func(cfg *sessionConfig) error {
		if path == "" {
			return errors.New("count field cannot be empty")
		}
		for _, part := range strings.Split(path, ".") {
			if part == "" {
				return errors.New("count field has an empty path segment")
			}
		}
		cfg.countField = path
		return nil
	}
}

// WithPollCallback registers a function to be called on every poll completion,
// successful or not.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. They run on the polling
// goroutine, and a slow callback keeps the poll in flight, which causes
// subsequent ticks to be dropped.
//
// Panics within callbacks are recovered and logged; they do not stop polling.
//
// Nil callbacks are silently ignored.
func WithPollCallback(cb func(PollResult)) Option {
	return func(cfg *sessionConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.pollCallbacks = append(cfg.pollCallbacks, cb)
		return nil
	}
}

// WithoutDashboard disables the HTTP server. [Session.Start] then only polls.
func WithoutDashboard() Option {
	return func(cfg *sessionConfig) error {
		cfg.dashboard = false
		return nil
	}
}
