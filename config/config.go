package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skillup/adapters/redis"
	"skillup/adapters/sqlx"
	"skillup/courses"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" mapstructure:"environment"`
	Profile     string      `json:"profile" mapstructure:"profile"`

	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Courses  courses.Config `json:"courses" mapstructure:"courses"`
	Badges   BadgesConfig   `json:"badges" mapstructure:"badges"`
	Engine   EngineConfig   `json:"engine" mapstructure:"engine"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Security SecurityConfig `json:"security" mapstructure:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" mapstructure:"address"`
	PathPrefix        string        `json:"path_prefix" mapstructure:"path_prefix"`
	CORSOrigin        string        `json:"cors_origin" mapstructure:"cors_origin"`
	ReadTimeout       time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the progress store adapter
type StorageConfig struct {
	Adapter string       `json:"adapter" mapstructure:"adapter"`
	Redis   redis.Config `json:"redis,omitempty" mapstructure:"redis"`
	SQL     sqlx.Config  `json:"sql,omitempty" mapstructure:"sql"`
	File    FileConfig   `json:"file,omitempty" mapstructure:"file"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// BadgesConfig locates the badge catalog file
type BadgesConfig struct {
	CatalogPath string `json:"catalog_path" mapstructure:"catalog_path"`
	Watch       bool   `json:"watch" mapstructure:"watch"`
}

// EngineConfig holds the point policy and background work settings
type EngineConfig struct {
	LessonCompletionPoints int64         `json:"lesson_completion_points" mapstructure:"lesson_completion_points"`
	EnrollmentPoints       int64         `json:"enrollment_points" mapstructure:"enrollment_points"`
	DispatchMode           string        `json:"dispatch_mode" mapstructure:"dispatch_mode"`
	ReconcileEnabled       bool          `json:"reconcile_enabled" mapstructure:"reconcile_enabled"`
	ReconcileInterval      time.Duration `json:"reconcile_interval" mapstructure:"reconcile_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" mapstructure:"level"`
	Format     string            `json:"format" mapstructure:"format"`
	Output     string            `json:"output" mapstructure:"output"`
	Attributes map[string]string `json:"attributes,omitempty" mapstructure:"attributes"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" mapstructure:"enable_rate_limit"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty" mapstructure:"rate_limit"`
	// APIKeys guard the admin routes. Entries starting with "$2" are bcrypt hashes.
	APIKeys []string `json:"api_keys,omitempty" mapstructure:"api_keys"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	BurstSize         int           `json:"burst_size" mapstructure:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// Load loads configuration from defaults and SKILLUP_* environment variables and validates it
func Load() (*Config, error) {
	return load(DefaultConfig(), "")
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		return errors.New("config file must have a .json, .yaml, .yml or .toml extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a file; environment variables override file values
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	return load(DefaultConfig(), filepath.Clean(path))
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPgx),
			File: FileConfig{
				Path: "./data/skillup.json",
			},
		},
		Courses: courses.Config{
			Driver:      "sqlite",
			DSN:         "file:./data/courses.db",
			AutoMigrate: true,
		},
		Badges: BadgesConfig{
			CatalogPath: "./data/badges.yaml",
			Watch:       true,
		},
		Engine: EngineConfig{
			LessonCompletionPoints: 5,
			EnrollmentPoints:       10,
			DispatchMode:           "async",
			ReconcileEnabled:       true,
			ReconcileInterval:      5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("engine config: %v", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if cfg.Courses.Driver == "postgres" && cfg.Courses.DSN != "" {
		cfg.Courses.DSN = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{fmt.Sprintf("[%d REDACTED]", len(c.Security.APIKeys))}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
