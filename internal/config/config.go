package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the process configuration: open.INC access, refresh and
// retention settings, and the households file location.
type AppConfig struct {
	// open.INC access.
	BaseURL string
	Session string // OD-SESSION header value

	// RefreshInterval controls how often current readings are refreshed.
	RefreshInterval time.Duration

	// In-memory store retention.
	StoreMaxHistory int           // max number of refreshes per tag (0 = unlimited)
	StoreMaxAge     time.Duration // max age of refreshes (0 = unlimited)

	// HouseholdsFile is the sensors/households declaration, see Households.
	HouseholdsFile string

	HTTPTimeout time.Duration
	Port        string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.BaseURL = os.Getenv("OPENINC_BASE_URL")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("OPENINC_BASE_URL is required")
	}
	cfg.Session = os.Getenv("OPENINC_SESSION")
	if cfg.Session == "" {
		return nil, fmt.Errorf("OPENINC_SESSION is required")
	}

	// Refresh interval: default 15 minutes.
	intervalStr := getenvDefault("REFRESH_INTERVAL", "15m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}
	cfg.RefreshInterval = interval

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals

	maxAgeStr := getenvDefault("STORE_MAX_AGE", "24h")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_MAX_AGE: %w", err)
	}
	cfg.StoreMaxAge = maxAge

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.HouseholdsFile = getenvDefault("HOUSEHOLDS_FILE", "households.yaml")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
