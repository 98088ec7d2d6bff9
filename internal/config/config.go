package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL  string
	HTTPPort     string
	AdminAPIKey  string
	BaseCurrency string
	// ExchangeRate is the single configured base→target conversion rate
	// applied to every non-base portfolio currency.
	ExchangeRate decimal.Decimal

	// Optional Google Sheets summary export; disabled when either is empty.
	ExportSpreadsheetID string
	GoogleCredentials   string
	// ExportInterval is how often the summary is republished in the
	// background, on top of the export after every committed upload.
	ExportInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:         envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:            envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:         envOrDefault("ADMIN_API_KEY", ""),
		BaseCurrency:        envOrDefault("BASE_CURRENCY", "CAD"),
		ExchangeRate:        envOrDefaultDecimal("EXCHANGE_RATE", decimal.RequireFromString("0.71")),
		ExportSpreadsheetID: envOrDefault("EXPORT_SPREADSHEET_ID", ""),
		GoogleCredentials:   envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		ExportInterval:      envOrDefaultDuration("EXPORT_INTERVAL", 24*time.Hour),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			slog.Warn("invalid decimal env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
