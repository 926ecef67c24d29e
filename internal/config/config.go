// Package config loads the connector's runtime settings from an optional
// .env file and the process environment, environment winning.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// State store backends the connector can run against.
const (
	StateBackendRedis    = "redis"
	StateBackendPostgres = "postgres"
)

type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// JWTSecret verifies the bearer tokens the platform signs when it
	// invokes action runs.
	JWTSecret string `mapstructure:"JWT_SECRET"`

	StateBackend string `mapstructure:"STATE_BACKEND"`
	RedisAddr    string `mapstructure:"REDIS_ADDR"`
	RedisDB      int    `mapstructure:"REDIS_DB"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`

	SensorsAPIURL       string `mapstructure:"SENSORS_API_URL"`
	SensorsTokenURL     string `mapstructure:"SENSORS_TOKEN_URL"`
	SensorsClientID     string `mapstructure:"SENSORS_CLIENT_ID"`
	SensorsClientSecret string `mapstructure:"SENSORS_CLIENT_SECRET"`

	AMQPURL          string `mapstructure:"AMQP_URL"`
	ActivityExchange string `mapstructure:"ACTIVITY_EXCHANGE"`
	ActivityQueue    string `mapstructure:"ACTIVITY_QUEUE"`

	AWSRegion      string `mapstructure:"AWS_REGION"`
	AlertFromEmail string `mapstructure:"ALERT_FROM_EMAIL"`
	AlertToEmail   string `mapstructure:"ALERT_TO_EMAIL"`
}

// SensorsOAuthConfigured reports whether ingestion calls should carry a
// client-credentials token.
func (c Config) SensorsOAuthConfigured() bool {
	return c.SensorsTokenURL != "" && c.SensorsClientID != "" && c.SensorsClientSecret != ""
}

// AlertsConfigured reports whether failed pull runs should email operators.
func (c Config) AlertsConfigured() bool {
	return c.AWSRegion != "" && c.AlertFromEmail != "" && c.AlertToEmail != ""
}

// LoadConfig reads configuration from path/.env when present and from the
// environment. Missing required settings are reported together so one
// deploy attempt surfaces them all.
func LoadConfig(path string) (Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("METRICS_ADDR", ":9090")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("STATE_BACKEND", StateBackendRedis)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("SENSORS_API_URL", "")
	viper.SetDefault("SENSORS_TOKEN_URL", "")
	viper.SetDefault("SENSORS_CLIENT_ID", "")
	viper.SetDefault("SENSORS_CLIENT_SECRET", "")
	viper.SetDefault("AMQP_URL", "")
	viper.SetDefault("ACTIVITY_EXCHANGE", "integration.events")
	viper.SetDefault("ACTIVITY_QUEUE", "integration.activity")
	viper.SetDefault("AWS_REGION", "")
	viper.SetDefault("ALERT_FROM_EMAIL", "")
	viper.SetDefault("ALERT_TO_EMAIL", "")

	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s/.env: %w", path, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.SensorsAPIURL == "" {
		missing = append(missing, "SENSORS_API_URL")
	}
	switch c.StateBackend {
	case StateBackendRedis:
		// REDIS_ADDR has a usable default
	case StateBackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown STATE_BACKEND %q", c.StateBackend)
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %v", missing)
	}
	return nil
}
