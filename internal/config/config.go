package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "chatstatus.yaml"

type Config struct {
	Addr       string         `yaml:"addr"`
	SocketPath string         `yaml:"socket_path"`
	Store      StoreConfig    `yaml:"store"`
	Delivery   DeliveryConfig `yaml:"delivery"`
	Tracking   TrackingConfig `yaml:"tracking"`
}

type StoreConfig struct {
	// Backend is one of memory, sqlite, redis.
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type DeliveryConfig struct {
	DeliveryTimeoutSeconds int `yaml:"delivery_timeout_seconds"`
	ReadTimeoutSeconds     int `yaml:"read_timeout_seconds"`
}

type TrackingConfig struct {
	HistoryLimit         int `yaml:"history_limit"`
	CleanupMaxAgeHours   int `yaml:"cleanup_max_age_hours"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

func Default() Config {
	return Config{
		Addr: ":7440",
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: "chatstatus.db",
		},
		Delivery: DeliveryConfig{
			DeliveryTimeoutSeconds: 30,
		},
		Tracking: TrackingConfig{
			HistoryLimit:         10,
			CleanupMaxAgeHours:   7 * 24,
			SweepIntervalMinutes: 60,
		},
	}
}

// ResolvePath returns the config file path, preferring the
// CHATSTATUS_CONFIG environment variable.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("CHATSTATUS_CONFIG")); v != "" {
		return v
	}
	return defaultConfigFile
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg.applyEnv(), nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg.withDefaults().applyEnv(), nil
}

// applyEnv lets deployment environments override the file without editing
// it.
func (c Config) applyEnv() Config {
	if v := strings.TrimSpace(os.Getenv("CHATSTATUS_ADDR")); v != "" {
		c.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATSTATUS_SOCKET_PATH")); v != "" {
		c.SocketPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATSTATUS_STORE_BACKEND")); v != "" {
		c.Store.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATSTATUS_REDIS_ADDR")); v != "" {
		c.Store.RedisAddr = v
	}
	return c
}

func (c Config) withDefaults() Config {
	def := Default()
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = def.Addr
	}
	if strings.TrimSpace(c.Store.Backend) == "" {
		c.Store.Backend = def.Store.Backend
	}
	if c.Store.Backend == "sqlite" && strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = def.Store.SQLitePath
	}
	if c.Delivery.DeliveryTimeoutSeconds <= 0 {
		c.Delivery.DeliveryTimeoutSeconds = def.Delivery.DeliveryTimeoutSeconds
	}
	if c.Tracking.HistoryLimit <= 0 {
		c.Tracking.HistoryLimit = def.Tracking.HistoryLimit
	}
	if c.Tracking.CleanupMaxAgeHours <= 0 {
		c.Tracking.CleanupMaxAgeHours = def.Tracking.CleanupMaxAgeHours
	}
	if c.Tracking.SweepIntervalMinutes <= 0 {
		c.Tracking.SweepIntervalMinutes = def.Tracking.SweepIntervalMinutes
	}
	return c
}

// DeliveryTimeout converts the configured seconds to a duration.
func (c DeliveryConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

func (c DeliveryConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c TrackingConfig) CleanupMaxAge() time.Duration {
	return time.Duration(c.CleanupMaxAgeHours) * time.Hour
}

func (c TrackingConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}
