// Package config loads the dscope YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level dscope configuration.
type Config struct {
	Bus          string         `yaml:"bus"`     // "session" or "system".
	Address      string         `yaml:"address"` // Raw bus address, overrides Bus when set.
	CallTimeout  string         `yaml:"call_timeout"`
	ServiceLimit int            `yaml:"service_limit"` // Concurrent operations per service (0 = default).
	Services     ServicesConfig `yaml:"services"`
}

// ServicesConfig controls the service list pane.
type ServicesConfig struct {
	Filter     string `yaml:"filter"`      // Substring filter applied on load.
	HideUnique bool   `yaml:"hide_unique"` // Drop :1.xx peer names from the list.
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Bus: "session",
		Services: ServicesConfig{
			HideUnique: true,
		},
	}
}

// Load reads a YAML file and returns a Config layered over Default.
// Environment variables referenced as ${VAR} or $VAR in the YAML are
// expanded before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	return cfg, nil
}

// ResolvePath returns the config file to load: the explicit path when given,
// otherwise ~/.config/dscope/config.yaml if it exists, otherwise "".
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".config", "dscope", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	switch c.Bus {
	case "", "session", "system":
	default:
		return fmt.Errorf("config: bus must be \"session\" or \"system\", got %q", c.Bus)
	}
	if c.CallTimeout != "" {
		if _, err := time.ParseDuration(c.CallTimeout); err != nil {
			return fmt.Errorf("config: call_timeout: %w", err)
		}
	}
	if c.ServiceLimit < 0 {
		return fmt.Errorf("config: service_limit must not be negative")
	}
	return nil
}

// Timeout returns the parsed call timeout, or zero when unset.
func (c Config) Timeout() time.Duration {
	if c.CallTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 0
	}
	return d
}
