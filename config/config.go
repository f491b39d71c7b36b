// Package config loads the process configuration from environment
// variables (and an optional on-disk override file), per spec §6.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const configDirPath = "/etc/signal-bus"

// Config holds the process's configuration, as read from spec §6's
// environment variables.
type Config struct {
	SignalEndpoint         string `mapstructure:"signal_endpoint" validate:"required"`
	RegisteredAccount      string `mapstructure:"registered_account" validate:"required"`
	WebhookURL             string `mapstructure:"webhook_url" validate:"required"`
	AuthToken              string `mapstructure:"auth_token" validate:"required"`
	AuthorizationWhitelist string `mapstructure:"authorization_whitelist"`
	GroupCacheSize         int    `mapstructure:"group_cache_size"`

	TimescaleHost     string `mapstructure:"timescale_host"`
	TimescalePort     int    `mapstructure:"timescale_port"`
	TimescaleDatabase string `mapstructure:"timescale_database"`
	TimescaleUsername string `mapstructure:"timescale_username"`
	TimescalePassword string `mapstructure:"timescale_password" validate:"required"`

	TimescaleBatchSize           int `mapstructure:"timescale_batch_size"`
	TimescaleBatchTimeoutSeconds int `mapstructure:"timescale_batch_timeout_seconds"`
}

// Load reads configuration from the environment, falling back to an
// optional /etc/signal-bus/config.yaml base layer, and fails fast if a
// required key (spec §6) is missing.
func Load() (*Config, error) {
	ensureSampleFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDirPath)

	v.SetDefault("group_cache_size", 1000)
	v.SetDefault("timescale_host", "localhost")
	v.SetDefault("timescale_port", 5432)
	v.SetDefault("timescale_database", "signalbus")
	v.SetDefault("timescale_username", "postgres")
	v.SetDefault("timescale_batch_size", 100)
	v.SetDefault("timescale_batch_timeout_seconds", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	for _, key := range []string{
		"signal_endpoint", "registered_account", "webhook_url", "auth_token",
		"authorization_whitelist", "group_cache_size",
		"timescale_host", "timescale_port", "timescale_database",
		"timescale_username", "timescale_password",
		"timescale_batch_size", "timescale_batch_timeout_seconds",
	} {
		_ = v.BindEnv(key, envName(key))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration missing required value: %w", err)
	}

	return &cfg, nil
}

// envName converts a mapstructure key ("timescale_batch_size") into its
// environment variable name ("TIMESCALE_BATCH_SIZE") per spec §6's table.
func envName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// ensureSampleFile writes a commented sample config file on first boot,
// matching the teacher's operator-convenience bootstrap; environment
// variables always take precedence over its contents.
func ensureSampleFile() {
	if err := os.MkdirAll(configDirPath, 0o755); err != nil {
		log.Printf("config: could not create %s: %v (continuing, env vars still apply)", configDirPath, err)
		return
	}

	path := filepath.Join(configDirPath, "config.yaml")
	if _, err := os.Stat(path); err == nil || !os.IsNotExist(err) {
		return
	}

	sample := `# signal-bus configuration overrides.
# Every value here may also be set as an environment variable (see spec
# §6); environment variables win when both are present.
#
# signal_endpoint: "localhost:8080"
# registered_account: "+15550000"
# webhook_url: "https://assistant.example.com/webhook"
# auth_token: "changeme"
# authorization_whitelist: "+15550001,+15550002"
# group_cache_size: 1000
# timescale_host: "localhost"
# timescale_port: 5432
# timescale_database: "signalbus"
# timescale_username: "postgres"
# timescale_password: "changeme"
# timescale_batch_size: 100
# timescale_batch_timeout_seconds: 5
`
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		log.Printf("config: could not write sample file at %s: %v", path, err)
	}
}
