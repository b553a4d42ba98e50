// Package config loads server configuration from file, environment
// variables, and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	CodeTTLMin  int `mapstructure:"CODE_TTL_MIN"`
	TokenTTLMin int `mapstructure:"TOKEN_TTL_MIN"`

	// RequireHTTPSRedirects rejects plain-http redirect URIs at client
	// registration. Disable only for local development.
	RequireHTTPSRedirects bool `mapstructure:"REQUIRE_HTTPS_REDIRECTS"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/ohmage-oauth2/")
	v.AddConfigPath("$HOME/.ohmage-oauth2")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/ohmage_oauth2")
	v.SetDefault("MONGO_DB_NAME", "ohmage_oauth2")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PREFIX", "ohmage")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "ohmage-oauth2")
	v.SetDefault("CODE_TTL_MIN", 5)
	v.SetDefault("TOKEN_TTL_MIN", 30)
	v.SetDefault("REQUIRE_HTTPS_REDIRECTS", true)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
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
