// Package config provides YAML configuration parsing for flockwatch.
//
// This package enables running flockwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: North Paddock
//	port: 8080
//	api_url: ${API_URL}
//	poll_interval: 2s
//	timeout: 5s
//	count_field: sheep_count
//
// When api_url is omitted it is read from the API_URL environment variable.
// [LoadWithOverrides] layers FLOCKWATCH_* variables and bound flags on top.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort         = 8080
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 5 * time.Second
	defaultCountField   = "sheep_count"

	// defaultAPIURL is used when api_url is omitted.
	defaultAPIURL = "${API_URL}"

	// minPollInterval keeps a misconfigured file from hammering the device.
	minPollInterval = 100 * time.Millisecond

	minTimeout = 100 * time.Millisecond
	maxTimeout = time.Minute
)

// Config is the root configuration structure for flockwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Flockwatch" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// APIURL is the base URL of the counting service.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}.
	// Defaults to ${API_URL}.
	APIURL string `yaml:"api_url"`

	// PollInterval is the time between count polls.
	// Accepts duration strings like "2s", "500ms". Defaults to 2s.
	PollInterval Duration `yaml:"poll_interval"`

	// Timeout bounds every request to the service. Defaults to 5s.
	Timeout Duration `yaml:"timeout"`

	// CountField is the dot-notation path of the count in the payload.
	// Defaults to "sheep_count".
	CountField string `yaml:"count_field"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in api_url are expanded after parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadWithOverrides reads a YAML configuration file and applies the values
// set in v before defaults and validation, so an override can supply a field
// the file leaves out.
func LoadWithOverrides(path string, v *viper.Viper) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := overlay(cfg, v); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML configuration data.
//
// Defaults are applied for every omitted field, then api_url is expanded and
// the result is validated.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// finish applies defaults, expands api_url and validates.
func (c *Config) finish() error {
	c.applyDefaults()
	return c.expandAndValidate()
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(defaultTimeout)
	}
	if c.CountField == "" {
		c.CountField = defaultCountField
	}
	if strings.TrimSpace(c.APIURL) == "" {
		c.APIURL = defaultAPIURL
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}

	if c.Timeout.Duration() < minTimeout {
		return fmt.Errorf("timeout must be at least %s, got %s", minTimeout, c.Timeout.Duration())
	}
	if c.Timeout.Duration() > maxTimeout {
		return fmt.Errorf("timeout must not exceed %s, got %s", maxTimeout, c.Timeout.Duration())
	}

	for _, part := range strings.Split(c.CountField, ".") {
		if part == "" {
			return fmt.Errorf("count_field %q has an empty path segment", c.CountField)
		}
	}

	expanded, err := expandEnvVars(c.APIURL)
	if err != nil {
		return fmt.Errorf("api_url: %w", err)
	}
	c.APIURL = strings.TrimSpace(expanded)

	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	parsedURL, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api_url: invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("api_url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("api_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("api_url must include a host")
	}

	return nil
}
