package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.DriverMode != "auto" {
		t.Fatalf("DriverMode = %q, want %q", cfg.DriverMode, "auto")
	}
	if cfg.PortalBaseURL != "" {
		t.Fatalf("PortalBaseURL = %q, want empty default", cfg.PortalBaseURL)
	}
	if !cfg.Headless {
		t.Fatalf("Headless = false, want true default")
	}
	if cfg.EventBufferSize != 256 {
		t.Fatalf("EventBufferSize = %d, want 256", cfg.EventBufferSize)
	}
	if cfg.RunTimeout != 20*time.Minute {
		t.Fatalf("RunTimeout = %s, want 20m", cfg.RunTimeout)
	}
}

func TestLoadUsesExplicitPortalSettings(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORTAL_BASE_URL", "https://portal.example.com/login")
	t.Setenv("PORTAL_HEADLESS", "false")
	t.Setenv("PORTAL_USER_WAIT_POLL", "2s")
	t.Setenv("DRIVER_MODE", "chrome")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PortalBaseURL != "https://portal.example.com/login" {
		t.Fatalf("PortalBaseURL = %q, want explicit value", cfg.PortalBaseURL)
	}
	if cfg.Headless {
		t.Fatalf("Headless = true, want false")
	}
	if cfg.UserWaitPoll != 2*time.Second {
		t.Fatalf("UserWaitPoll = %s, want 2s", cfg.UserWaitPoll)
	}
	if cfg.DriverMode != "chrome" {
		t.Fatalf("DriverMode = %q, want chrome", cfg.DriverMode)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("DRIVER_MODE", "firefox")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want driver mode rejection")
	}

	setCoreEnvEmpty(t)
	t.Setenv("PORTAL_RUN_TIMEOUT", "10s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want run timeout rejection")
	}

	setCoreEnvEmpty(t)
	t.Setenv("APP_EVENT_BUFFER_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want buffer size rejection")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_EVENT_BUFFER_SIZE",
		"DRIVER_MODE",
		"PORTAL_BASE_URL",
		"PORTAL_HEADLESS",
		"PORTAL_NAVIGATE_TIMEOUT",
		"PORTAL_USER_WAIT_POLL",
		"PORTAL_MAX_USER_WAIT_LOOPS",
		"PORTAL_RUN_TIMEOUT",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
