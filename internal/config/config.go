// Package config loads application configuration from environment
// variables (PHARMA_ prefix) layered over an optional YAML file.
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
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"AUTH"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig locates the embedded SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"PATH" default:"data/pharmapos.db"`
	// InMemory swaps the SQLite store for the in-memory one; used by the
	// demo mode and tests.
	InMemory bool `yaml:"in_memory" envconfig:"IN_MEMORY" default:"false"`
}

// AuthConfig controls session credential issuance.
type AuthConfig struct {
	// JWTSecret signs bearer credentials. Required.
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	// TokenTTL is the fixed bearer lifetime; license state is re-checked
	// on every privileged call, never baked into this.
	TokenTTL   time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL" default:"24h"`
	BcryptCost int           `yaml:"bcrypt_cost" envconfig:"BCRYPT_COST" default:"10"`
	// AdminEmail/AdminPassword, when set, seed a back-office account at
	// startup if one does not already exist.
	AdminEmail    string `yaml:"admin_email" envconfig:"ADMIN_EMAIL"`
	AdminPassword string `yaml:"admin_password" envconfig:"ADMIN_PASSWORD"`
}

// LicenseConfig holds the activation key signing material.
type LicenseConfig struct {
	// SigningSecret feeds the key codec. Required, at least 16 bytes.
	// Injected here rather than held as a process-wide global.
	SigningSecret string `yaml:"signing_secret" envconfig:"SIGNING_SECRET"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/pharmapos.log"`
}

// RateLimitConfig bounds login and activation attempts per client.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"1"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"5"`
}

// TelemetryConfig controls tracing and metrics export.
type TelemetryConfig struct {
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING" default:"false"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS" default:"true"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0"`
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" default:"pharmapos"`
	ServiceVersion string  `yaml:"service_version" envconfig:"SERVICE_VERSION" default:"dev"`
}

// Load loads configuration from environment variables and, when present,
// the config file named by PHARMA_CONFIG_FILE (default config.yml).
func Load() (*Config, error) {
	cfg := Default()

	configFile := os.Getenv("PHARMA_CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yml"
	}
	if _, err := os.Stat(configFile); err == nil {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables override file values.
	if err := envconfig.Process("PHARMA", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for unusable values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.License.SigningSecret) < 16 {
		return fmt.Errorf("license.signing_secret must be at least 16 bytes")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("auth.bcrypt_cost %d out of range", c.Auth.BcryptCost)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	return nil
}

// Default returns the built-in defaults. Secrets are intentionally empty
// so a misconfigured deployment fails at startup instead of signing keys
// with a known value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "data/pharmapos.db"},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/pharmapos.log",
		},
		RateLimit: RateLimitConfig{Enabled: true, RPS: 1, Burst: 5},
		Telemetry: TelemetryConfig{
			EnableMetrics:  true,
			SampleRatio:    1.0,
			ServiceName:    "pharmapos",
			ServiceVersion: "dev",
		},
	}
}
