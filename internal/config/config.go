// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Analytics inputs
	RiskFreeRate    float64 // Annualized risk-free rate, e.g. 0.02 for 2%
	BenchmarkSymbol string  // Ticker of the reference index used for comparisons

	// Market data provider
	MarketDataAPIKey    string
	MarketDataBaseURL   string
	MarketDataStreamURL string // WebSocket endpoint for live quotes (optional)

	// Background refresh
	PriceRefreshMinutes int // Minimum minutes between price refresh runs

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup storage configuration.
// Backups are disabled when the bucket is empty.
type BackupConfig struct {
	Bucket        string
	Endpoint      string // Custom endpoint for S3-compatible stores (empty = AWS)
	Region        string
	AccessKey     string
	SecretKey     string
	RetentionDays int
}

// Enabled reports whether cloud backups are configured.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("COMPASS_DATA_DIR", "")
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
		DataDir:             absDataDir,
		Port:                getEnvAsInt("COMPASS_PORT", 8002),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		RiskFreeRate:        getEnvAsFloat("RISK_FREE_RATE", 0.02),
		BenchmarkSymbol:     getEnv("BENCHMARK_SYMBOL", "SPY"),
		MarketDataAPIKey:    getEnv("MARKET_DATA_API_KEY", ""),
		MarketDataBaseURL:   getEnv("MARKET_DATA_BASE_URL", "https://www.alphavantage.co/query"),
		MarketDataStreamURL: getEnv("MARKET_DATA_STREAM_URL", ""),
		PriceRefreshMinutes: getEnvAsInt("PRICE_REFRESH_MINUTES", 30),
		Backup: &BackupConfig{
			Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:        getEnv("BACKUP_S3_REGION", "auto"),
			AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return fmt.Errorf("risk-free rate must be a fraction in [0,1], got %v", c.RiskFreeRate)
	}
	if c.BenchmarkSymbol == "" {
		return fmt.Errorf("benchmark symbol must not be empty")
	}

	// Note: market data API key optional - analytics runs on stored prices
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
