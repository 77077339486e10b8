package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Authority AuthorityConfig `yaml:"authority" envconfig:"AUTHORITY"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// AuthorityConfig describes how to reach the remote license authority.
type AuthorityConfig struct {
	BaseURL       string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://license.scanpro.dev"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"5s"`
	CheckInterval time.Duration `yaml:"check_interval" envconfig:"CHECK_INTERVAL" default:"6h"`
}

// LicenseConfig contains local license engine configuration.
type LicenseConfig struct {
	// SiteURL is the install's base URL; the site identifier sent to the
	// authority is derived from it.
	SiteURL string `yaml:"site_url" envconfig:"SITE_URL" default:"http://localhost:8080"`

	// StoreBackend selects the persistence backend: "file" or "sqlite".
	StoreBackend string `yaml:"store_backend" envconfig:"STORE_BACKEND" default:"file"`
	StorePath    string `yaml:"store_path" envconfig:"STORE_PATH" default:"data/license.dat"`

	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"5m"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/scanpro.log"`
}

// Load loads configuration from an optional YAML file overlaid with
// environment variables (prefix SCANPRO).
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Environment variables win over the file.
	if err := envconfig.Process("SCANPRO", cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Authority: AuthorityConfig{
			BaseURL:       "https://license.scanpro.dev",
			Timeout:       5 * time.Second,
			CheckInterval: 6 * time.Hour,
		},
		License: LicenseConfig{
			SiteURL:      "http://localhost:8080",
			StoreBackend: "file",
			StorePath:    "data/license.dat",
			CacheTTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/scanpro.log",
		},
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Authority.BaseURL == "" {
		return fmt.Errorf("authority base_url is required")
	}
	if c.Authority.Timeout <= 0 || c.Authority.Timeout > 30*time.Second {
		return fmt.Errorf("authority timeout must be between 0 and 30s, got %s", c.Authority.Timeout)
	}
	// Re-validation must run at least twice daily.
	if c.Authority.CheckInterval <= 0 || c.Authority.CheckInterval > 12*time.Hour {
		return fmt.Errorf("authority check_interval must be between 0 and 12h, got %s", c.Authority.CheckInterval)
	}
	switch c.License.StoreBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown license store_backend %q", c.License.StoreBackend)
	}
	if c.License.CacheTTL <= 0 {
		return fmt.Errorf("license cache_ttl must be positive, got %s", c.License.CacheTTL)
	}
	return nil
}

// configFilePath returns the config file location, or empty when no file is
// present.
func configFilePath() string {
	if path := os.Getenv("SCANPRO_CONFIG"); path != "" {
		return path
	}
	for _, candidate := range []string{"scanpro.yml", "config/scanpro.yml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
