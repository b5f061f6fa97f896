package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the portal sync service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// DriverMode selects the workflow driver: "chrome", "mock" or "auto".
	// Auto picks chrome when a portal URL is configured, mock otherwise.
	DriverMode string

	PortalBaseURL string
	Headless      bool

	NavigateTimeout  time.Duration
	UserWaitPoll     time.Duration
	MaxUserWaitLoops int
	RunTimeout       time.Duration

	EventBufferSize int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "portalsync"),
		AllowAnyOrigin:   false,
		DriverMode:       envOrDefault("DRIVER_MODE", "auto"),
		PortalBaseURL:    stringsTrimSpace("PORTAL_BASE_URL"),
		Headless:         true,
		NavigateTimeout:  45 * time.Second,
		UserWaitPoll:     5 * time.Second,
		MaxUserWaitLoops: 36,
		RunTimeout:       20 * time.Minute,
		EventBufferSize:  256,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:  15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.Headless, err = boolFromEnv("PORTAL_HEADLESS", cfg.Headless)
	if err != nil {
		return Config{}, err
	}
	cfg.NavigateTimeout, err = durationFromEnv("PORTAL_NAVIGATE_TIMEOUT", cfg.NavigateTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UserWaitPoll, err = durationFromEnv("PORTAL_USER_WAIT_POLL", cfg.UserWaitPoll)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUserWaitLoops, err = intFromEnv("PORTAL_MAX_USER_WAIT_LOOPS", cfg.MaxUserWaitLoops)
	if err != nil {
		return Config{}, err
	}
	cfg.RunTimeout, err = durationFromEnv("PORTAL_RUN_TIMEOUT", cfg.RunTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EventBufferSize, err = intFromEnv("APP_EVENT_BUFFER_SIZE", cfg.EventBufferSize)
	if err != nil {
		return Config{}, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.DriverMode)) {
	case "auto", "chrome", "mock":
	default:
		return Config{}, fmt.Errorf("DRIVER_MODE must be auto, chrome or mock")
	}
	if cfg.EventBufferSize <= 0 {
		return Config{}, fmt.Errorf("APP_EVENT_BUFFER_SIZE must be positive")
	}
	if cfg.MaxUserWaitLoops <= 0 {
		return Config{}, fmt.Errorf("PORTAL_MAX_USER_WAIT_LOOPS must be positive")
	}
	if cfg.RunTimeout < time.Minute {
		return Config{}, fmt.Errorf("PORTAL_RUN_TIMEOUT must be at least 1m")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
