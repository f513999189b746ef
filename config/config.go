package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the revocation service.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Admin API authentication.
	JWTSecretKey string `mapstructure:"JWT_SECRET_KEY"`

	// Job engine knobs.
	EngineWorkers        int `mapstructure:"ENGINE_WORKERS"`
	RevokeBatchSize      int `mapstructure:"REVOKE_BATCH_SIZE"`
	EnginePollIntervalMS int `mapstructure:"ENGINE_POLL_INTERVAL_MS"`

	// Cross-domain logout synchronization.
	FederatedOrigins  []string `mapstructure:"FEDERATED_ORIGINS"`
	TrustedOrigins    []string `mapstructure:"TRUSTED_ORIGINS"`
	SyncAckTimeoutMS  int      `mapstructure:"SYNC_ACK_TIMEOUT_MS"`
	SyncMaxRetries    int      `mapstructure:"SYNC_MAX_RETRIES"`
	SyncBackoffMS     int      `mapstructure:"SYNC_BACKOFF_MS"`
	SyncOverallSec    int      `mapstructure:"SYNC_OVERALL_SEC"`
	LogoutPubSubTopic string   `mapstructure:"LOGOUT_PUBSUB_TOPIC"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/revoker/")
	v.AddConfigPath("$HOME/.revoker")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/revoker_dev")
	v.SetDefault("MONGO_DB_NAME", "revoker_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PREFIX", "revoker")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "revoker-server")
	v.SetDefault("JWT_SECRET_KEY", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("ENGINE_WORKERS", 2)
	v.SetDefault("REVOKE_BATCH_SIZE", 100)
	v.SetDefault("ENGINE_POLL_INTERVAL_MS", 2000)
	v.SetDefault("SYNC_ACK_TIMEOUT_MS", 3000)
	v.SetDefault("SYNC_MAX_RETRIES", 2)
	v.SetDefault("SYNC_BACKOFF_MS", 500)
	v.SetDefault("SYNC_OVERALL_SEC", 15)
	v.SetDefault("LOGOUT_PUBSUB_TOPIC", "revoker:logout-events")

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
