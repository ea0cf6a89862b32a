package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	Simulation SimulationConfig `yaml:"simulation"`
	Polling    PollingConfig    `yaml:"polling"`
	Upload     UploadConfig     `yaml:"upload"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	Mode           string   `yaml:"mode"` // debug, release, test
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type BackendConfig struct {
	BaseURL             string `yaml:"base_url"`
	FeedURL             string `yaml:"feed_url"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`       // per API call
	TrainTimeoutSeconds int    `yaml:"train_timeout_seconds"` // whole retraining job
}

type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	HistorySize int    `yaml:"history_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type SimulationConfig struct {
	TickSeconds     int `yaml:"tick_seconds"`
	AlertTTLSeconds int `yaml:"alert_ttl_seconds"`
	AlertCapacity   int `yaml:"alert_capacity"`
	DialTimeoutSecs int `yaml:"dial_timeout_seconds"`
}

type PollingConfig struct {
	MetricsSeconds   int `yaml:"metrics_seconds"`
	PipelineSeconds  int `yaml:"pipeline_seconds"`
	ServicesSeconds  int `yaml:"services_seconds"`
	LogsSeconds      int `yaml:"logs_seconds"`
	AlertsSeconds    int `yaml:"alerts_seconds"`
	AlertsLogSeconds int `yaml:"alerts_log_seconds"`
}

type UploadConfig struct {
	RetrainMaxMB int `yaml:"retrain_max_mb"`
	DatasetMaxMB int `yaml:"dataset_max_mb"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// LoadConfig reads and validates a YAML configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filename, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate fills defaults and rejects values that cannot work
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		c.Server.Port = "8888"
	}
	switch c.Server.Mode {
	case "":
		c.Server.Mode = "release"
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server mode must be debug, release or test: %q", c.Server.Mode)
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:8000"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend base_url must be an http(s) URL: %q", c.Backend.BaseURL)
	}
	if c.Backend.FeedURL == "" {
		c.Backend.FeedURL = feedURLFromBase(c.Backend.BaseURL)
	}
	if !strings.HasPrefix(c.Backend.FeedURL, "ws://") && !strings.HasPrefix(c.Backend.FeedURL, "wss://") {
		return fmt.Errorf("backend feed_url must be a ws(s) URL: %q", c.Backend.FeedURL)
	}
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = 10
	}
	if c.Backend.TrainTimeoutSeconds <= 0 {
		c.Backend.TrainTimeoutSeconds = 1800
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.HistorySize <= 0 {
		c.Redis.HistorySize = 500
	}

	if c.Database.Path == "" {
		c.Database.Path = "dashboard.db"
	}

	if c.Simulation.TickSeconds <= 0 {
		c.Simulation.TickSeconds = 5
	}
	if c.Simulation.AlertTTLSeconds <= 0 {
		c.Simulation.AlertTTLSeconds = 5
	}
	if c.Simulation.AlertCapacity <= 0 {
		c.Simulation.AlertCapacity = 20
	}
	if c.Simulation.DialTimeoutSecs <= 0 {
		c.Simulation.DialTimeoutSecs = 5
	}

	defaultSeconds(&c.Polling.MetricsSeconds, 5)
	defaultSeconds(&c.Polling.PipelineSeconds, 5)
	defaultSeconds(&c.Polling.ServicesSeconds, 10)
	defaultSeconds(&c.Polling.LogsSeconds, 5)
	defaultSeconds(&c.Polling.AlertsSeconds, 10)
	defaultSeconds(&c.Polling.AlertsLogSeconds, 10)

	if c.Upload.RetrainMaxMB <= 0 {
		c.Upload.RetrainMaxMB = 20
	}
	if c.Upload.DatasetMaxMB <= 0 {
		c.Upload.DatasetMaxMB = 50
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	cfg := &Config{
		Redis: RedisConfig{Enabled: true},
	}
	_ = cfg.Validate()
	return cfg
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) TrainTimeout() time.Duration {
	return time.Duration(c.Backend.TrainTimeoutSeconds) * time.Second
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Simulation.TickSeconds) * time.Second
}

func (c *Config) AlertTTL() time.Duration {
	return time.Duration(c.Simulation.AlertTTLSeconds) * time.Second
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Simulation.DialTimeoutSecs) * time.Second
}

// PollInterval returns the refresh interval of a dashboard panel
func (c *Config) PollInterval(panel string) time.Duration {
	seconds := map[string]int{
		"metrics":    c.Polling.MetricsSeconds,
		"pipeline":   c.Polling.PipelineSeconds,
		"services":   c.Polling.ServicesSeconds,
		"logs":       c.Polling.LogsSeconds,
		"alerts":     c.Polling.AlertsSeconds,
		"alerts-log": c.Polling.AlertsLogSeconds,
	}[panel]
	if seconds <= 0 {
		seconds = 10
	}
	return time.Duration(seconds) * time.Second
}

func defaultSeconds(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func feedURLFromBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws/simulate_attack"
	default:
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws/simulate_attack"
	}
}
