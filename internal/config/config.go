// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for all databases, always absolute
	LogLevel      string
	QuoteAPIURL   string
	QuoteAPIToken string
	Port          int
	RiskFreeRate  float64 // Annual rate used by the Sharpe ratio
	DevMode       bool
	Rebalance     RebalanceConfig
	Scheduler     SchedulerConfig
	R2            R2Config
}

// RebalanceConfig is the drift tolerance shared by holdings and suggestions
type RebalanceConfig struct {
	AbsoluteThreshold float64
	RelativeThreshold float64
}

// SchedulerConfig holds cron expressions with a leading seconds field
type SchedulerConfig struct {
	SuggestionsSchedule string
	MetricsSchedule     string
	BackupSchedule      string
	CleanupSchedule     string
	MaintenanceSchedule string
	Enabled             bool
}

// R2Config holds Cloudflare R2 credentials for ledger backups
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Retention       int // Backups kept after pruning
}

// Enabled reports whether every credential is present
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

// Load reads configuration from .env and the environment
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		Port:          getEnvAsInt("PORT", 8001),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		QuoteAPIURL:   strings.TrimRight(getEnv("QUOTE_API_URL", "https://brapi.dev/api"), "/"),
		QuoteAPIToken: getEnv("QUOTE_API_TOKEN", ""),
		RiskFreeRate:  getEnvAsFloat("RISK_FREE_RATE", 0),
		Rebalance: RebalanceConfig{
			AbsoluteThreshold: getEnvAsFloat("REBALANCE_ABSOLUTE_THRESHOLD", 0.05),
			RelativeThreshold: getEnvAsFloat("REBALANCE_RELATIVE_THRESHOLD", 0.20),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getEnvAsBool("SCHEDULER_ENABLED", true),
			SuggestionsSchedule: getEnv("SUGGESTIONS_SCHEDULE", "0 0 6 * * *"),
			MetricsSchedule:     getEnv("METRICS_SCHEDULE", "0 0 * * * *"),
			BackupSchedule:      getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"),
			CleanupSchedule:     getEnv("CLEANUP_SCHEDULE", "0 15 * * * *"),
			MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 0 2 * * *"),
		},
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", ""),
			Retention:       getEnvAsInt("BACKUP_RETENTION", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and cron expressions
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.QuoteAPIURL == "" {
		return fmt.Errorf("QUOTE_API_URL is required")
	}
	if math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0) {
		return fmt.Errorf("invalid RISK_FREE_RATE")
	}
	if c.Rebalance.AbsoluteThreshold <= 0 || c.Rebalance.AbsoluteThreshold >= 1 {
		return fmt.Errorf("REBALANCE_ABSOLUTE_THRESHOLD must be in (0, 1), got %g", c.Rebalance.AbsoluteThreshold)
	}
	if c.Rebalance.RelativeThreshold <= 0 {
		return fmt.Errorf("REBALANCE_RELATIVE_THRESHOLD must be positive, got %g", c.Rebalance.RelativeThreshold)
	}
	if c.R2.Retention < 1 {
		return fmt.Errorf("BACKUP_RETENTION must be at least 1")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedules := map[string]string{
		"SUGGESTIONS_SCHEDULE": c.Scheduler.SuggestionsSchedule,
		"METRICS_SCHEDULE":     c.Scheduler.MetricsSchedule,
		"BACKUP_SCHEDULE":      c.Scheduler.BackupSchedule,
		"CLEANUP_SCHEDULE":     c.Scheduler.CleanupSchedule,
		"MAINTENANCE_SCHEDULE": c.Scheduler.MaintenanceSchedule,
	}
	for key, expr := range schedules {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, expr, err)
		}
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
