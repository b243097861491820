package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_RequiresSubscriptionAPIURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SUBSCRIPTION_API_URL")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatal("expected error when SUBSCRIPTION_API_URL is missing")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SUBSCRIPTION_API_URL", "https://api.tiffinbox.test/v1/")
	for _, key := range []string{"PORT", "SERVER_PORT", "BACKEND_TIMEOUT_SECONDS", "IN_FLIGHT_TTL_SECONDS", "EDIT_SESSION_TTL_MINUTES", "BUSINESS_TIMEZONE", "REDIS_KEY_PREFIX", "LOG_LEVEL"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SubscriptionAPIURL != "https://api.tiffinbox.test/v1" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.SubscriptionAPIURL)
	}
	if cfg.ServerPort != "8085" {
		t.Fatalf("expected default port 8085, got %q", cfg.ServerPort)
	}
	if cfg.BackendTimeout() != 30*time.Second || cfg.InFlightTTL() != time.Minute || cfg.EditSessionTTL() != 30*time.Minute {
		t.Fatalf("unexpected default durations: %+v", cfg)
	}
	if cfg.RedisKeyPrefix != "subscription_edit:in_flight" {
		t.Fatalf("unexpected default redis prefix %q", cfg.RedisKeyPrefix)
	}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %s", cfg.Location())
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("expected info level, got %s", cfg.SlogLevel())
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SUBSCRIPTION_API_URL", "https://api.tiffinbox.test")
	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "10000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "10000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_UsesInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SUBSCRIPTION_API_URL", "https://api.tiffinbox.test")
	unsetEnvWithCleanup(t, "SUBSCRIPTION_API_KEY")
	setEnvWithCleanup(t, "INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SubscriptionAPIKey != "alias-only-key" {
		t.Fatalf("expected SubscriptionAPIKey from alias env var, got %q", cfg.SubscriptionAPIKey)
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SUBSCRIPTION_API_URL", "https://api.tiffinbox.test")
	setEnvWithCleanup(t, "BUSINESS_TIMEZONE", "Mars/Olympus_Mons")
	setEnvWithCleanup(t, "IN_FLIGHT_TTL_SECONDS", "-5")
	setEnvWithCleanup(t, "LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BusinessTimezone != "UTC" {
		t.Fatalf("expected invalid timezone to fall back to UTC, got %q", cfg.BusinessTimezone)
	}
	if cfg.InFlightTTLSeconds != 60 {
		t.Fatalf("expected negative ttl to fall back to 60, got %d", cfg.InFlightTTLSeconds)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.SlogLevel())
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
