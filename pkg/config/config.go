package config

import (
	"fmt"
	"os"

	"github.com/mcclellann/imarisha/pkg/models"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port                   string
	DBDriver               string
	DBConn                 string
	LogLevel               string
	JWTSecret              string
	DisbursementAccount    models.AccountKind
	InventoryWatchSchedule string
	DefaultRegistrationFee decimal.Decimal
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		DBDriver:               getEnv("DB_DRIVER", "sqlite3"),
		DBConn:                 getEnv("DB_CONN", "imarisha.db"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		DisbursementAccount:    models.AccountKind(getEnv("DISBURSEMENT_ACCOUNT", string(models.AccountDrawdown))),
		InventoryWatchSchedule: getEnv("INVENTORY_WATCH_SCHEDULE", "@every 1h"),
	}

	fee, err := decimal.NewFromString(getEnv("DEFAULT_REGISTRATION_FEE", "800.00"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_REGISTRATION_FEE is not a decimal: %w", err)
	}
	cfg.DefaultRegistrationFee = fee

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if !cfg.DisbursementAccount.Valid() {
		return nil, fmt.Errorf("DISBURSEMENT_ACCOUNT must be savings or drawdown, got %q", cfg.DisbursementAccount)
	}
	if fee.IsNegative() || !models.HasMoneyPrecision(fee) {
		return nil, fmt.Errorf("DEFAULT_REGISTRATION_FEE must be a non-negative amount with at most 2 decimal places")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
