// Package config loads application configuration from a YAML file with
// environment variable overrides for secrets and deployment targets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Google    OAuthAppConfig  `yaml:"google"`
	Microsoft OAuthAppConfig  `yaml:"microsoft"`
	SendGrid  SendGridConfig  `yaml:"sendgrid"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Sweeps    SweepConfig     `yaml:"sweeps"`
	Auth      AuthConfig      `yaml:"auth"`
}

// AuthConfig maps API bearer tokens to owner IDs.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection settings. Redis is optional: when
// Addr is empty the dispatch guard falls back to Postgres advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// OAuthAppConfig holds one OAuth application's client credential pair.
type OAuthAppConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SendGridConfig holds ESP API settings.
type SendGridConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// TrackingConfig holds the open-tracking pixel settings.
type TrackingConfig struct {
	// BaseURL is the public origin the pixel and image URLs are built
	// against, e.g. "https://track.example.com".
	BaseURL string `yaml:"base_url"`
}

// DispatchConfig holds dispatch-loop settings.
type DispatchConfig struct {
	// SendTimeoutSeconds bounds one transport call. Distinct from the
	// per-campaign inter-send delay; a timed-out send marks the contact
	// failed and the loop moves on.
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
	// TestRecipients receive test-sends with a [TEST] subject prefix.
	TestRecipients []string `yaml:"test_recipients"`
}

// SendTimeout returns the transport call timeout.
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// SweepConfig holds the periodic sweep intervals.
type SweepConfig struct {
	ReminderIntervalMinutes int `yaml:"reminder_interval_minutes"`
	ScheduleIntervalMinutes int `yaml:"schedule_interval_minutes"`
	ReminderBatchSize       int `yaml:"reminder_batch_size"`
}

// ReminderInterval returns how often the reminder queue is swept.
func (c SweepConfig) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalMinutes) * time.Minute
}

// ScheduleInterval returns how often scheduled campaigns are promoted.
func (c SweepConfig) ScheduleInterval() time.Duration {
	return time.Duration(c.ScheduleIntervalMinutes) * time.Minute
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SendGrid.BaseURL == "" {
		cfg.SendGrid.BaseURL = "https://api.sendgrid.com/v3"
	}
	if cfg.SendGrid.TimeoutSeconds == 0 {
		cfg.SendGrid.TimeoutSeconds = 30
	}
	if cfg.Dispatch.SendTimeoutSeconds == 0 {
		cfg.Dispatch.SendTimeoutSeconds = 30
	}
	if cfg.Sweeps.ReminderIntervalMinutes == 0 {
		cfg.Sweeps.ReminderIntervalMinutes = 15
	}
	if cfg.Sweeps.ScheduleIntervalMinutes == 0 {
		cfg.Sweeps.ScheduleIntervalMinutes = 5
	}
	if cfg.Sweeps.ReminderBatchSize == 0 {
		cfg.Sweeps.ReminderBatchSize = 50
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Google.ClientSecret = v
	}
	if v := os.Getenv("MICROSOFT_CLIENT_ID"); v != "" {
		cfg.Microsoft.ClientID = v
	}
	if v := os.Getenv("MICROSOFT_CLIENT_SECRET"); v != "" {
		cfg.Microsoft.ClientSecret = v
	}
	if v := os.Getenv("SENDGRID_BASE_URL"); v != "" {
		cfg.SendGrid.BaseURL = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}

	return cfg, nil
}
