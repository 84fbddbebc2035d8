// ABOUTME: Configuration loading and parsing for bot-relay.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Default timing values, applied when the config omits them.
const (
	DefaultResponseTimeout   = 10 * time.Second
	DefaultRegistrationGrace = 10 * time.Second
)

// Config represents the complete bot-relay configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Bots    BotsConfig    `yaml:"bots"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// StorageConfig selects and configures the registry's persistence backend.
type StorageConfig struct {
	// Backend is one of "memory", "file", "sqlite".
	Backend string `yaml:"backend"`
	// Path is the storage file for the file and sqlite backends.
	Path string `yaml:"path"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	// JWTSecret enables bearer-token auth on /api when set.
	JWTSecret string `yaml:"jwt_secret"`
}

// BotsConfig holds bot-related timing configuration.
type BotsConfig struct {
	ResponseTimeout   time.Duration `yaml:"-"`
	RegistrationGrace time.Duration `yaml:"-"`
	KeepDuration      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ResponseTimeoutRaw   string `yaml:"response_timeout"`
	RegistrationGraceRaw string `yaml:"registration_grace"`
	KeepDurationRaw      string `yaml:"keep_duration"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Bots.ResponseTimeout == 0 {
		c.Bots.ResponseTimeout = DefaultResponseTimeout
	}
	if c.Bots.RegistrationGrace == 0 {
		c.Bots.RegistrationGrace = DefaultRegistrationGrace
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	switch c.Storage.Backend {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, file, sqlite (got %q)", c.Storage.Backend)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bots.ResponseTimeoutRaw != "" {
		cfg.Bots.ResponseTimeout, err = time.ParseDuration(cfg.Bots.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", cfg.Bots.ResponseTimeoutRaw, err)
		}
	}

	if cfg.Bots.RegistrationGraceRaw != "" {
		cfg.Bots.RegistrationGrace, err = time.ParseDuration(cfg.Bots.RegistrationGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing registration_grace %q: %w", cfg.Bots.RegistrationGraceRaw, err)
		}
	}

	if cfg.Bots.KeepDurationRaw != "" {
		cfg.Bots.KeepDuration, err = time.ParseDuration(cfg.Bots.KeepDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing keep_duration %q: %w", cfg.Bots.KeepDurationRaw, err)
		}
	}

	return nil
}
