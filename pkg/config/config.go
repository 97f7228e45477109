package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Scoring  ScoringConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver string // sqlite3 or postgres
	DSN    string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // json or text
}

// ScoringConfig holds portfolio scoring configuration
type ScoringConfig struct {
	ReportInterval time.Duration // 0 disables the periodic report
	Workers        int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	workers, err := getEnvInt("SCORING_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvDuration("REPORT_INTERVAL", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: port,
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite3"),
			DSN:    getEnv("DB_DSN", "quincena.db"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Scoring: ScoringConfig{
			ReportInterval: interval,
			Workers:        workers,
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by parsing alone
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	if c.Scoring.Workers <= 0 {
		return fmt.Errorf("SCORING_WORKERS must be positive, got %d", c.Scoring.Workers)
	}
	if c.Scoring.ReportInterval < 0 {
		return fmt.Errorf("REPORT_INTERVAL must not be negative, got %s", c.Scoring.ReportInterval)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds a logrus logger from the log settings
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if c.Log.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
