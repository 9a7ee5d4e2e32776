package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// recognized environment variables and their defaults
const (
	defaultPort               = "8080"
	defaultConflictWindowMs   = 5000
	defaultMaxEventHistory    = 1000
	defaultMaxConflictHistory = 100
	defaultPresenceStaleMs    = 300000
	defaultReaperInterval     = 5 * time.Minute
)

// loads configuration from environment variables; every option is
// optional and falls back to its default
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	conflictWindowMs, err := intFromEnv("CONFLICT_WINDOW_MS", defaultConflictWindowMs)
	if err != nil {
		return nil, err
	}

	maxEventHistory, err := intFromEnv("MAX_EVENT_HISTORY", defaultMaxEventHistory)
	if err != nil {
		return nil, err
	}

	maxConflictHistory, err := intFromEnv("MAX_CONFLICT_HISTORY", defaultMaxConflictHistory)
	if err != nil {
		return nil, err
	}

	presenceStaleMs, err := intFromEnv("PRESENCE_STALE_TIMEOUT_MS", defaultPresenceStaleMs)
	if err != nil {
		return nil, err
	}

	reaperInterval := defaultReaperInterval
	if raw := os.Getenv("REAPER_INTERVAL"); raw != "" {
		reaperInterval, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("REAPER_INTERVAL: %w", err)
		}
	}

	return &Config{
		Environment:          environment,
		Port:                 port,
		ConflictWindow:       time.Duration(conflictWindowMs) * time.Millisecond,
		MaxEventHistory:      maxEventHistory,
		MaxConflictHistory:   maxConflictHistory,
		PresenceStaleTimeout: time.Duration(presenceStaleMs) * time.Millisecond,
		ReaperInterval:       reaperInterval,
	}, nil
}

func intFromEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, value)
	}

	return value, nil
}
