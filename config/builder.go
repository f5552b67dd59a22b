package config

import (
	"log/slog"

	"github.com/jpalmerr/flockwatch"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The returned options do not include a logger; callers append
// [flockwatch.WithLogger] when they need one. The API URL is passed to
// [flockwatch.New] separately.
func BuildOptions(cfg *Config) []flockwatch.Option {
	opts := []flockwatch.Option{
		flockwatch.WithPort(cfg.Port),
		flockwatch.WithPollingInterval(cfg.PollInterval.Duration()),
		flockwatch.WithTimeout(cfg.Timeout.Duration()),
		flockwatch.WithCountField(cfg.CountField),
	}

	if cfg.Title != "" {
		opts = append(opts, flockwatch.WithTitle(cfg.Title))
	}

	return opts
}

// NewSession builds a [flockwatch.Session] from cfg.
//
// extra options are applied after the configured ones, so they take
// precedence.
func NewSession(cfg *Config, logger *slog.Logger, extra ...flockwatch.Option) (*flockwatch.Session, error) {
	opts := BuildOptions(cfg)
	if logger != nil {
		opts = append(opts, flockwatch.WithLogger(logger))
	}
	opts = append(opts, extra...)
	return flockwatch.New(cfg.APIURL, opts...)
}
