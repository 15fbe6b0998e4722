// Package config loads service settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// ISSUE_CALENDAR_API_URL for api.url.
const EnvPrefix = "ISSUE_CALENDAR"

// Config holds all configuration parameters for the service.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	DB          string        `mapstructure:"db"`
	LogLevel    string        `mapstructure:"log_level"`
	SessionIdle time.Duration `mapstructure:"session_idle"`
	API         APIConfig     `mapstructure:"api"`
	S3          S3Config      `mapstructure:"s3"`
}

// APIConfig is the upstream issue API.
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// S3Config is the bucket reports are exported to. Export is off when
// Bucket is empty.
type S3Config struct {
	Endpoint     string        `mapstructure:"endpoint"`
	Region       string        `mapstructure:"region"`
	Bucket       string        `mapstructure:"bucket"`
	AccessKey    string        `mapstructure:"access_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

var defaults = map[string]any{
	"addr":             ":8080",
	"db":               "issue-calendar.db",
	"log_level":        "info",
	"session_idle":     12 * time.Hour,
	"api.url":          "",
	"api.token":        "",
	"api.timeout":      30 * time.Second,
	"s3.endpoint":      "",
	"s3.region":        "us-east-1",
	"s3.bucket":        "",
	"s3.access_key":    "",
	"s3.secret_key":    "",
	"s3.sync_interval": 5 * time.Minute,
}

// New returns a viper instance with defaults and environment binding
// set up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file, if given, and decodes the merged settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.API.URL = strings.TrimRight(cfg.API.URL, "/")
	return &cfg, nil
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.API.URL == "" {
		missing = append(missing, EnvPrefix+"_API_URL")
	}
	if c.DB == "" {
		missing = append(missing, EnvPrefix+"_DB")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %v", missing)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.SessionIdle <= 0 {
		return errors.New("session_idle must be positive")
	}
	if c.S3.Bucket != "" && c.S3.SyncInterval <= 0 {
		return errors.New("s3.sync_interval must be positive")
	}
	return nil
}
