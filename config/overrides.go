package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. FLOCKWATCH_PORT or FLOCKWATCH_API_URL.
const EnvPrefix = "FLOCKWATCH"

// Override keys. Flags bound to a [viper.Viper] with these keys take
// precedence over environment variables.
const (
	KeyTitle        = "title"
	KeyPort         = "port"
	KeyAPIURL       = "api_url"
	KeyPollInterval = "poll_interval"
	KeyTimeout      = "timeout"
	KeyCountField   = "count_field"
)

// NewOverrides returns a viper instance reading FLOCKWATCH_* variables.
func NewOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every value set in v onto an already parsed cfg and
// validates the result again. Unset keys leave cfg untouched.
//
// Use [LoadWithOverrides] when an override may supply a field that the file
// omits, such as api_url.
func ApplyOverrides(cfg *Config, v *viper.Viper) error {
	if err := overlay(cfg, v); err != nil {
		return err
	}
	return cfg.finish()
}

// overlay copies the values set in v onto cfg without validating.
func overlay(cfg *Config, v *viper.Viper) error {
	if v.IsSet(KeyTitle) {
		cfg.Title = v.GetString(KeyTitle)
	}
	if v.IsSet(KeyPort) {
		raw := strings.TrimSpace(v.GetString(KeyPort))
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("port: invalid value %q", raw)
		}
		cfg.Port = port
	}
	if v.IsSet(KeyAPIURL) {
		cfg.APIURL = v.GetString(KeyAPIURL)
	}
	if v.IsSet(KeyPollInterval) {
		d, err := time.ParseDuration(v.GetString(KeyPollInterval))
		if err != nil {
			return fmt.Errorf("poll_interval: invalid duration %q", v.GetString(KeyPollInterval))
		}
		cfg.PollInterval = Duration(d)
	}
	if v.IsSet(KeyTimeout) {
		d, err := time.ParseDuration(v.GetString(KeyTimeout))
		if err != nil {
			return fmt.Errorf("timeout: invalid duration %q", v.GetString(KeyTimeout))
		}
		cfg.Timeout = Duration(d)
	}
	if v.IsSet(KeyCountField) {
		cfg.CountField = v.GetString(KeyCountField)
	}
	return nil
}
