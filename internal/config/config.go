package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	Remote RemoteConfig
	Cache  CacheConfig
	Google GoogleConfig
	Sweep  SweepConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      int
	WebAppURI string
}

// RemoteConfig holds the remote campaign service connection settings
type RemoteConfig struct {
	BaseURL   string
	APIKey    string
	PageLimit int // maximum records fetched per reload
}

// CacheConfig holds the local fallback cache settings
type CacheConfig struct {
	Path string // SQLite file path
}

// GoogleConfig holds the Drive/Calendar integration settings.
// All fields are optional; the integrations are skipped when unset.
type GoogleConfig struct {
	CredentialsFile string
	DriveFolderID   string
	CalendarID      string
}

// SweepConfig holds the scheduled-post sweep settings
type SweepConfig struct {
	Interval time.Duration
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	var err error
	if cfg.Remote.BaseURL, err = requireEnv("REMOTE_API_URL"); err != nil {
		return nil, err
	}
	if cfg.Remote.APIKey, err = requireEnv("REMOTE_API_KEY"); err != nil {
		return nil, err
	}

	pageLimit := getEnvWithDefault("REMOTE_PAGE_LIMIT", "200")
	cfg.Remote.PageLimit, err = strconv.Atoi(pageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REMOTE_PAGE_LIMIT: %w", err)
	}

	cfg.Cache.Path = getEnvWithDefault("CACHE_PATH", "postqueue-cache.db")

	// Optional Google integrations
	cfg.Google.CredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
	cfg.Google.DriveFolderID = os.Getenv("GOOGLE_DRIVE_FOLDER_ID")
	cfg.Google.CalendarID = getEnvWithDefault("GOOGLE_CALENDAR_ID", "primary")

	sweepInterval := getEnvWithDefault("SWEEP_INTERVAL", "30s")
	cfg.Sweep.Interval, err = time.ParseDuration(sweepInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SWEEP_INTERVAL: %w", err)
	}

	if cfg.Server.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}

	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
