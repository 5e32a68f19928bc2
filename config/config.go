package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

/* Config holds the process settings read from .env and the environment
 * Environment variables override the file; every key has a default
 */

type Config struct {
	Port                string        `mapstructure:"PORT" validate:"required"`
	StoreDriver         string        `mapstructure:"STORE_DRIVER" validate:"oneof=memory redis postgres"`
	RedisAddr           string        `mapstructure:"REDIS_ADDR" validate:"required_if=StoreDriver redis"`
	RedisPassword       string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB             int           `mapstructure:"REDIS_DB" validate:"min=0"`
	PostgresDSN         string        `mapstructure:"POSTGRES_DSN" validate:"required_if=StoreDriver postgres"`
	PublicBaseURL       string        `mapstructure:"PUBLIC_BASE_URL" validate:"required,url"`
	TopicURL            string        `mapstructure:"TOPIC_URL" validate:"required,url"`
	PoliciesFile        string        `mapstructure:"POLICIES_FILE"`
	DispatchConcurrency int           `mapstructure:"DISPATCH_CONCURRENCY" validate:"min=1"`
	BreakerThreshold    int           `mapstructure:"BREAKER_THRESHOLD" validate:"min=0"`
	BreakerOpenTimeout  time.Duration `mapstructure:"BREAKER_OPEN_TIMEOUT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"STORE_DRIVER":         "memory",
	"REDIS_ADDR":           "localhost:6379",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"POSTGRES_DSN":         "",
	"PUBLIC_BASE_URL":      "http://localhost:8080/fhir",
	"TOPIC_URL":            "http://hl7.org/fhir/us/davinci-pas/SubscriptionTopic/PASSubscriptionTopic",
	"POLICIES_FILE":        "",
	"DISPATCH_CONCURRENCY": 16,
	"BREAKER_THRESHOLD":    5,
	"BREAKER_OPEN_TIMEOUT": "30s",
	"LOG_LEVEL":            "info",
}

// GetConfig reads .env from the working directory (optional) and the environment
func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads .env from the given directories (optional) and the environment
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}
