package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/portfolio-analytics/internal/modules/settings"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for all databases, resolved to an absolute path
	BackupDir     string // Where database backups are written
	HistoryDBPath string // Price history database, defaults to <DataDir>/history.db
	LogLevel      string
	Port          int
	LogPretty     bool
	DevMode       bool

	// Analytics defaults, overridable per request and via the settings store
	AnnualRiskFreeRate float64
	PeriodsPerYear     int
	ConfidenceLevel    float64
	LookbackDays       int

	// Scheduler and ingest tuning
	PriceSyncSchedule string
	SnapshotSchedule  string
	YahooRateLimit    time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := resolveDataDir(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:       dataDir,
		BackupDir:     getEnv("BACKUP_DIR", filepath.Join(dataDir, "backups")),
		HistoryDBPath: getEnv("HISTORY_DB_PATH", filepath.Join(dataDir, "history.db")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("LOG_PRETTY", false),
		Port:          getEnvAsInt("PORT", 8001),
		DevMode:       getEnvAsBool("DEV_MODE", false),

		AnnualRiskFreeRate: getEnvAsFloat("ANNUAL_RISK_FREE_RATE", 0.02),
		PeriodsPerYear:     getEnvAsInt("PERIODS_PER_YEAR", 252),
		ConfidenceLevel:    getEnvAsFloat("DEFAULT_CONFIDENCE_LEVEL", 0.95),
		LookbackDays:       getEnvAsInt("LOOKBACK_DAYS", 365),

		PriceSyncSchedule: getEnv("PRICE_SYNC_SCHEDULE", "0 30 23 * * *"),
		SnapshotSchedule:  getEnv("SNAPSHOT_SCHEDULE", "0 0 0 * * *"),
		YahooRateLimit:    time.Duration(getEnvAsInt("YAHOO_RATE_LIMIT_MS", 500)) * time.Millisecond,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings overlays analytics defaults from the settings database.
// This should be called after the config database is initialized. Settings DB
// values take precedence over environment variables; empty values keep the
// environment fallback.
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	rate, err := settingsRepo.Get("annual_risk_free_rate")
	if err != nil {
		return fmt.Errorf("failed to get annual_risk_free_rate from settings: %w", err)
	}
	if rate != nil && *rate != "" {
		if v, err := strconv.ParseFloat(*rate, 64); err == nil {
			c.AnnualRiskFreeRate = v
		}
	}

	periods, err := settingsRepo.Get("periods_per_year")
	if err != nil {
		return fmt.Errorf("failed to get periods_per_year from settings: %w", err)
	}
	if periods != nil && *periods != "" {
		if v, err := strconv.Atoi(*periods); err == nil && v > 0 {
			c.PeriodsPerYear = v
		}
	}

	confidence, err := settingsRepo.Get("default_confidence_level")
	if err != nil {
		return fmt.Errorf("failed to get default_confidence_level from settings: %w", err)
	}
	if confidence != nil && *confidence != "" {
		if v, err := strconv.ParseFloat(*confidence, 64); err == nil && v > 0 && v < 1 {
			c.ConfidenceLevel = v
		}
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d outside valid range", c.Port)
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		return fmt.Errorf("confidence level %v outside (0,1)", c.ConfidenceLevel)
	}
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("periods per year must be positive, got %d", c.PeriodsPerYear)
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookback days must be positive, got %d", c.LookbackDays)
	}
	if c.YahooRateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative, got %v", c.YahooRateLimit)
	}
	return nil
}

// resolveDataDir turns the configured path into an absolute directory,
// creating it when missing.
func resolveDataDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return abs, nil
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
