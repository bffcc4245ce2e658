package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"goequity/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig `validate:"required"`
	Simulation SimulationConfig
	Metrics    MetricsConfig
}

// DatabaseConfig holds database connection settings. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required"`
	GinMode string
}

// SimulationConfig holds defaults for analysis runs. Request-level values
// override them.
type SimulationConfig struct {
	NGroups         int
	MaxGroups       int
	NIterations     int
	MaxIterations   int
	ConfidenceLevel float64
	BaseSeed        uint64
	Workers         int
	FailureMode     string
	ZeroPolicy      string
	RunTimeout      time.Duration
	CodeVersion     string
}

// MetricsConfig holds Prometheus settings. With Port set, /metrics is served
// on that port instead of the API port.
type MetricsConfig struct {
	Enabled bool
	Port    string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database:   *loadDatabaseConfig(),
		Server:     *loadServerConfig(),
		Simulation: *loadSimulationConfig(),
		Metrics:    *loadMetricsConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:          getEnvOrDefault("DATABASE_URL", ""),
		MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns: getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		AutoMigrate:  getEnvBoolOrDefault("DB_AUTO_MIGRATE", true),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		NGroups:         getEnvIntOrDefault("EQUITY_N_GROUPS", 5),
		MaxGroups:       getEnvIntOrDefault("EQUITY_MAX_GROUPS", 1000),
		NIterations:     getEnvIntOrDefault("EQUITY_N_ITERATIONS", 1000),
		MaxIterations:   getEnvIntOrDefault("EQUITY_MAX_ITERATIONS", 1_000_000),
		ConfidenceLevel: getEnvFloatOrDefault("EQUITY_CONFIDENCE_LEVEL", 0.95),
		BaseSeed:        getEnvUint64OrDefault("EQUITY_SEED", 20240601),
		Workers:         getEnvIntOrDefault("EQUITY_WORKERS", 0),
		FailureMode:     getEnvOrDefault("EQUITY_FAILURE_MODE", "strict"),
		ZeroPolicy:      getEnvOrDefault("EQUITY_ZERO_POLICY", "error"),
		RunTimeout:      getEnvDurationOrDefault("EQUITY_RUN_TIMEOUT", 10*time.Minute),
		CodeVersion:     getEnvOrDefault("EQUITY_CODE_VERSION", "dev"),
	}
}

func loadMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled: getEnvBoolOrDefault("METRICS_ENABLED", true),
		Port:    getEnvOrDefault("METRICS_PORT", ""),
	}
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if c.Metrics.Port != "" && c.Metrics.Port == c.Server.Port {
		return errors.ConfigInvalid("METRICS_PORT must differ from PORT")
	}

	s := c.Simulation
	switch {
	case s.NGroups < 1:
		return errors.ConfigInvalid(fmt.Sprintf("EQUITY_N_GROUPS must be >= 1, got %d", s.NGroups))
	case s.MaxGroups < s.NGroups:
		return errors.ConfigInvalid("EQUITY_MAX_GROUPS must be >= EQUITY_N_GROUPS")
	case s.NIterations < 1:
		return errors.ConfigInvalid(fmt.Sprintf("EQUITY_N_ITERATIONS must be >= 1, got %d", s.NIterations))
	case s.MaxIterations < s.NIterations:
		return errors.ConfigInvalid("EQUITY_MAX_ITERATIONS must be >= EQUITY_N_ITERATIONS")
	case s.ConfidenceLevel <= 0 || s.ConfidenceLevel >= 1:
		return errors.ConfigInvalid(fmt.Sprintf("EQUITY_CONFIDENCE_LEVEL must be in (0,1), got %v", s.ConfidenceLevel))
	case s.Workers < 0:
		return errors.ConfigInvalid("EQUITY_WORKERS cannot be negative")
	case s.FailureMode != "strict" && s.FailureMode != "lenient":
		return errors.ConfigInvalid(fmt.Sprintf("EQUITY_FAILURE_MODE must be strict or lenient, got %q", s.FailureMode))
	case s.ZeroPolicy != "error" && s.ZeroPolicy != "sentinel":
		return errors.ConfigInvalid(fmt.Sprintf("EQUITY_ZERO_POLICY must be error or sentinel, got %q", s.ZeroPolicy))
	case s.RunTimeout <= 0:
		return errors.ConfigInvalid("EQUITY_RUN_TIMEOUT must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64OrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
