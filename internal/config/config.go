/**
 * @description
 * This package handles the configuration management for the subscription-edit-service.
 * It uses the Viper library to read configuration from environment variables and an
 * optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the subscription-edit-service.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	ClerkJWKSURL           string `mapstructure:"CLERK_JWKS_URL"`
	SubscriptionAPIURL     string `mapstructure:"SUBSCRIPTION_API_URL"`
	SubscriptionAPIKey     string `mapstructure:"SUBSCRIPTION_API_KEY"`
	BackendTimeoutSeconds  int    `mapstructure:"BACKEND_TIMEOUT_SECONDS"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix         string `mapstructure:"REDIS_KEY_PREFIX"`
	InFlightTTLSeconds     int    `mapstructure:"IN_FLIGHT_TTL_SECONDS"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	CatalogRefreshSchedule string `mapstructure:"CATALOG_REFRESH_SCHEDULE"`
	SessionPruneSchedule   string `mapstructure:"SESSION_PRUNE_SCHEDULE"`
	EditSessionTTLMinutes  int    `mapstructure:"EDIT_SESSION_TTL_MINUTES"`
	BusinessTimezone       string `mapstructure:"BUSINESS_TIMEZONE"`
	LogLevel               string `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8085")
	viper.SetDefault("BACKEND_TIMEOUT_SECONDS", 30)
	viper.SetDefault("REDIS_KEY_PREFIX", "subscription_edit:in_flight")
	viper.SetDefault("IN_FLIGHT_TTL_SECONDS", 60)
	viper.SetDefault("CATALOG_REFRESH_SCHEDULE", "*/15 * * * *") // Every 15 minutes.
	viper.SetDefault("SESSION_PRUNE_SCHEDULE", "*/5 * * * *")    // Every 5 minutes.
	viper.SetDefault("EDIT_SESSION_TTL_MINUTES", 30)
	viper.SetDefault("BUSINESS_TIMEZONE", "UTC")
	viper.SetDefault("LOG_LEVEL", "info")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("SUBSCRIPTION_API_URL")
	_ = viper.BindEnv("SUBSCRIPTION_API_KEY", "SUBSCRIPTION_API_KEY", "INTERNAL_API_KEY")
	_ = viper.BindEnv("BACKEND_TIMEOUT_SECONDS")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("IN_FLIGHT_TTL_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CATALOG_REFRESH_SCHEDULE")
	_ = viper.BindEnv("SESSION_PRUNE_SCHEDULE")
	_ = viper.BindEnv("EDIT_SESSION_TTL_MINUTES")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("LOG_LEVEL")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.SubscriptionAPIURL = strings.TrimRight(strings.TrimSpace(config.SubscriptionAPIURL), "/")
	if config.SubscriptionAPIURL == "" {
		err = errors.New("SUBSCRIPTION_API_URL is required")
		return
	}
	config.SubscriptionAPIKey = strings.TrimSpace(config.SubscriptionAPIKey)
	if config.SubscriptionAPIKey == "" {
		config.SubscriptionAPIKey = strings.TrimSpace(os.Getenv("INTERNAL_API_KEY"))
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "subscription_edit:in_flight"
	}

	if config.BackendTimeoutSeconds <= 0 {
		config.BackendTimeoutSeconds = 30
	}
	if config.InFlightTTLSeconds <= 0 {
		config.InFlightTTLSeconds = 60
	}
	if config.EditSessionTTLMinutes <= 0 {
		config.EditSessionTTLMinutes = 30
	}

	if _, locErr := time.LoadLocation(config.BusinessTimezone); locErr != nil {
		slog.Warn("invalid BUSINESS_TIMEZONE; falling back to UTC", "component", "config", "value", config.BusinessTimezone, "error", locErr)
		config.BusinessTimezone = "UTC"
	}

	return
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

func (c Config) InFlightTTL() time.Duration {
	return time.Duration(c.InFlightTTLSeconds) * time.Second
}

func (c Config) EditSessionTTL() time.Duration {
	return time.Duration(c.EditSessionTTLMinutes) * time.Minute
}

// Location returns the business time zone used for "today". LoadConfig has
// already validated the name.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
