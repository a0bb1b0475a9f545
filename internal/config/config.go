// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases and backups (always absolute)
	LogLevel string
	DevMode  bool

	// Scheduler
	Timezone         string // IANA timezone name for trigger evaluation
	SchedulerWorkers int    // Worker pool size for job execution

	// Event router
	EventHistorySize int           // Max events retained in the in-memory history
	EventQueueSize   int           // Delivery queue capacity (publish blocks when full)
	DrainTimeout     time.Duration // Grace period for Stop() to drain in-flight work

	// Watchdog savings goal
	SavingsTarget float64 // Target amount to accumulate
	SavingsYears  float64 // Horizon in years

	// Metrics
	MetricsPort int // 0 disables the metrics listener
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FINWATCH_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		Timezone:         getEnv("SCHEDULER_TIMEZONE", "Europe/Helsinki"),
		SchedulerWorkers: getEnvAsInt("SCHEDULER_WORKERS", 4),
		EventHistorySize: getEnvAsInt("EVENT_HISTORY_SIZE", 10000),
		EventQueueSize:   getEnvAsInt("EVENT_QUEUE_SIZE", 4096),
		DrainTimeout:     time.Duration(getEnvAsInt("DRAIN_TIMEOUT_SECONDS", 10)) * time.Second,
		SavingsTarget:    getEnvAsFloat("SAVINGS_TARGET", 100000),
		SavingsYears:     getEnvAsFloat("SAVINGS_YEARS", 5),
		MetricsPort:      getEnvAsInt("METRICS_PORT", 9100),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.SchedulerWorkers < 1 {
		return fmt.Errorf("SCHEDULER_WORKERS must be at least 1, got %d", c.SchedulerWorkers)
	}
	if c.EventHistorySize < 1 {
		return fmt.Errorf("EVENT_HISTORY_SIZE must be at least 1, got %d", c.EventHistorySize)
	}
	if c.SavingsTarget < 0 {
		return fmt.Errorf("SAVINGS_TARGET must not be negative, got %f", c.SavingsTarget)
	}
	if c.SavingsYears <= 0 {
		return fmt.Errorf("SAVINGS_YEARS must be positive, got %f", c.SavingsYears)
	}
	return nil
}

// Location returns the configured scheduler timezone.
// Validate() guarantees the name parses, so errors are not expected here.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
