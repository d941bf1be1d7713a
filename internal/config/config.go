// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/pulse/internal/sentiment"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for all databases (always absolute)
	ReportsDir     string // Directory for generated report artifacts
	LogLevel       string
	Port           int
	DevMode        bool
	WorkerInterval time.Duration     // Poll interval for the job worker loop
	Weights        sentiment.Weights // Scoring component weights, validated at load
	Triggers       *TriggersConfig
	Reports        *ReportsConfig
}

// TriggersConfig holds scheduled job submission configuration
type TriggersConfig struct {
	Enabled         bool
	DailyRecalcSpec string // cron spec for the daily index recalculation
}

// ReportsConfig holds report artifact upload configuration
type ReportsConfig struct {
	UploadEnabled bool
	S3Bucket      string
	S3Endpoint    string // Custom endpoint for S3-compatible storage (empty = AWS)
	S3Region      string
	S3AccessKey   string
	S3SecretKey   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check PULSE_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("PULSE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	reportsDir := getEnv("PULSE_REPORTS_DIR", filepath.Join(absDataDir, "reports"))
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		ReportsDir:     reportsDir,
		Port:           getEnvAsInt("PULSE_PORT", 8010),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		WorkerInterval: time.Duration(getEnvAsInt("WORKER_INTERVAL_SECONDS", 5)) * time.Second,
		Weights:        loadWeights(),
		Triggers:       loadTriggersConfig(),
		Reports:        loadReportsConfig(),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent.
// Invalid scoring weights are a hard startup failure - they are never
// silently renormalized.
func (c *Config) Validate() error {
	if c.WorkerInterval <= 0 {
		return fmt.Errorf("worker interval must be positive, got %s", c.WorkerInterval)
	}

	if err := c.Weights.Validate(); err != nil {
		return err
	}

	return nil
}

// loadWeights reads scoring component weights from the environment,
// falling back to the defaults for any weight that is not set.
func loadWeights() sentiment.Weights {
	defaults := sentiment.DefaultWeights()
	return sentiment.Weights{
		Momentum:   getEnvAsFloat("WEIGHT_MOMENTUM", defaults.Momentum),
		Sentiment:  getEnvAsFloat("WEIGHT_SENTIMENT", defaults.Sentiment),
		PutCall:    getEnvAsFloat("WEIGHT_PUT_CALL", defaults.PutCall),
		Volatility: getEnvAsFloat("WEIGHT_VOLATILITY", defaults.Volatility),
		SafeHaven:  getEnvAsFloat("WEIGHT_SAFE_HAVEN", defaults.SafeHaven),
	}
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

// loadTriggersConfig loads scheduled submission configuration.
// Triggers are thin glue: they submit ordinary jobs through the job service.
func loadTriggersConfig() *TriggersConfig {
	return &TriggersConfig{
		Enabled:         getEnvAsBool("TRIGGERS_ENABLED", false),
		DailyRecalcSpec: getEnv("TRIGGER_DAILY_RECALC_CRON", "30 6 * * *"),
	}
}

// loadReportsConfig loads report upload configuration.
// Upload is optional; when disabled, report artifacts stay on local disk.
func loadReportsConfig() *ReportsConfig {
	return &ReportsConfig{
		UploadEnabled: getEnvAsBool("REPORT_UPLOAD_ENABLED", false),
		S3Bucket:      getEnv("REPORT_S3_BUCKET", ""),
		S3Endpoint:    getEnv("REPORT_S3_ENDPOINT", ""),
		S3Region:      getEnv("REPORT_S3_REGION", "auto"),
		S3AccessKey:   getEnv("REPORT_S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("REPORT_S3_SECRET_KEY", ""),
	}
}
