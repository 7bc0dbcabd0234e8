/**
 * @description
 * This package handles the configuration management for the clearing-service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file), providing a centralized and straightforward
 * way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the clearing-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	APIToken                 string `mapstructure:"API_TOKEN"`
	VerifyTimeoutSeconds     int    `mapstructure:"VERIFY_TIMEOUT_SECONDS"`
	TransferRetentionMinutes int    `mapstructure:"TRANSFER_RETENTION_MINUTES"`
	ReaperSchedule           string `mapstructure:"REAPER_SCHEDULE"`
	ShutdownTimeoutSeconds   int    `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS"`
}

// VerifyTimeout is the bound on one outbound account-verification call.
func (c Config) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSeconds) * time.Second
}

// TransferRetention is how long a transfer may sit unchanged before the
// reaper evicts it.
func (c Config) TransferRetention() time.Duration {
	return time.Duration(c.TransferRetentionMinutes) * time.Minute
}

// ShutdownTimeout bounds the graceful HTTP server shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values.
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("VERIFY_TIMEOUT_SECONDS", 5)
	viper.SetDefault("TRANSFER_RETENTION_MINUTES", 60)
	viper.SetDefault("REAPER_SCHEDULE", "@every 5m")
	viper.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)

	// Bind environment variables explicitly to ensure they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("API_TOKEN")
	_ = viper.BindEnv("VERIFY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("TRANSFER_RETENTION_MINUTES")
	_ = viper.BindEnv("REAPER_SCHEDULE")
	_ = viper.BindEnv("SHUTDOWN_TIMEOUT_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(config.APIToken) == "" {
		return Config{}, fmt.Errorf("API_TOKEN must be configured")
	}

	return config, nil
}
