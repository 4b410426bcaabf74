package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ptagraph configuration.
type Config struct {
	// Fact database, cache and application selection
	Facts FactsConfig `yaml:"facts"`

	// Mangle engine used by directory-backed fact databases
	Mangle MangleConfig `yaml:"mangle"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Facts: FactsConfig{
			DBPath:    "",
			CachePath: filepath.Join(".ptagraph", "cache"),
			App:       "default",
		},

		Mangle: MangleConfig{
			FactLimit:    0,
			QueryTimeout: "5m",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
			Dir:       ".ptagraph",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("PTAGRAPH_DB"); path != "" {
		c.Facts.DBPath = path
	}
	if path := os.Getenv("PTAGRAPH_CACHE"); path != "" {
		c.Facts.CachePath = path
	}
	if app := os.Getenv("PTAGRAPH_APP"); app != "" {
		c.Facts.App = app
	}
	if v := os.Getenv("PTAGRAPH_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// QueryTimeoutDuration returns the Mangle query timeout as a duration.
func (c *Config) QueryTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Mangle.QueryTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ValidLevels lists the accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Facts.DBPath == "" && c.Facts.CachePath == "" {
		return fmt.Errorf("no fact database configured (set facts.db_path, --db or PTAGRAPH_DB)")
	}
	if c.Facts.App == "" {
		return fmt.Errorf("application identifier must not be empty")
	}
	if c.Mangle.FactLimit < 0 {
		return fmt.Errorf("mangle.fact_limit must be >= 0, got %d", c.Mangle.FactLimit)
	}
	if c.Mangle.QueryTimeout != "" {
		if _, err := time.ParseDuration(c.Mangle.QueryTimeout); err != nil {
			return fmt.Errorf("invalid mangle.query_timeout %q: %w", c.Mangle.QueryTimeout, err)
		}
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (valid: text, json)", c.Logging.Format)
	}

	return nil
}
