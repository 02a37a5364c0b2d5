package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// Engine tunables. Defaults match the documented contract; change
	// them only when upstream extraction quality justifies it.
	ClassifierThreshold float64 // minimum label similarity
	BalanceTolerancePct float64 // identity tolerance as fraction of total assets
	MinCoverage         float64 // minimum classified fraction of extracted value
	StableThresholdPct  float64 // |pct change| below this is a stable trend

	// Retention of superseded statement versions
	RetentionDays     int
	RetentionSchedule string // cron spec
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8080),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/statements.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		ClassifierThreshold: getEnvAsFloat("CLASSIFIER_THRESHOLD", 0.6),
		BalanceTolerancePct: getEnvAsFloat("BALANCE_TOLERANCE_PCT", 0.005),
		MinCoverage:         getEnvAsFloat("MIN_COVERAGE", 0.5),
		StableThresholdPct:  getEnvAsFloat("STABLE_THRESHOLD_PCT", 0.02),

		RetentionDays:     getEnvAsInt("RETENTION_DAYS", 90),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "0 0 3 * * *"), // 03:00 daily
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.ClassifierThreshold <= 0 || c.ClassifierThreshold > 1 {
		return fmt.Errorf("CLASSIFIER_THRESHOLD must be in (0, 1]")
	}
	if c.MinCoverage < 0 || c.MinCoverage > 1 {
		return fmt.Errorf("MIN_COVERAGE must be in [0, 1]")
	}
	if c.BalanceTolerancePct < 0 {
		return fmt.Errorf("BALANCE_TOLERANCE_PCT must not be negative")
	}
	return nil
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
