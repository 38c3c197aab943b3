// Package config loads the server configuration: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/livepoll/go/internal/poll"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Poll    PollConfig    `yaml:"poll"`
	NATS    NATSConfig    `yaml:"nats"`
	Archive ArchiveConfig `yaml:"archive"`
	Publish PublishConfig `yaml:"publish"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PollConfig struct {
	MinDurationSec     int `yaml:"min_duration_sec"`
	MaxDurationSec     int `yaml:"max_duration_sec"`
	DefaultDurationSec int `yaml:"default_duration_sec"`
	TickIntervalMs     int `yaml:"tick_interval_ms"`
	RetentionSec       int `yaml:"retention_sec"`
	CodeLength         int `yaml:"code_length"`
}

type NATSConfig struct {
	URL           string `yaml:"url"` // empty disables NATS
	SubjectPrefix string `yaml:"subject_prefix"`
	JetStream     bool   `yaml:"jetstream"`
	Stream        string `yaml:"stream"`
}

type ArchiveConfig struct {
	DatabaseURL string `yaml:"database_url"` // empty disables the archive
}

type PublishConfig struct {
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info"},
		Poll: PollConfig{
			MinDurationSec:     60,
			MaxDurationSec:     172800,
			DefaultDurationSec: 3600,
			TickIntervalMs:     1000,
			RetentionSec:       3600,
			CodeLength:         6,
		},
		NATS: NATSConfig{
			SubjectPrefix: "livepoll",
			Stream:        "LIVEPOLL_EVENTS",
		},
		Publish: PublishConfig{
			QueueSize: 1000,
			Workers:   2,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Poll.MinDurationSec = getEnvAsInt("POLL_MIN_DURATION_SEC", c.Poll.MinDurationSec)
	c.Poll.MaxDurationSec = getEnvAsInt("POLL_MAX_DURATION_SEC", c.Poll.MaxDurationSec)
	c.Poll.DefaultDurationSec = getEnvAsInt("POLL_DEFAULT_DURATION_SEC", c.Poll.DefaultDurationSec)
	c.Poll.TickIntervalMs = getEnvAsInt("POLL_TICK_INTERVAL_MS", c.Poll.TickIntervalMs)
	c.Poll.RetentionSec = getEnvAsInt("POLL_RETENTION_SEC", c.Poll.RetentionSec)
	c.Poll.CodeLength = getEnvAsInt("POLL_CODE_LENGTH", c.Poll.CodeLength)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.NATS.JetStream = getEnvAsBool("NATS_JETSTREAM", c.NATS.JetStream)
	c.NATS.Stream = getEnv("NATS_STREAM", c.NATS.Stream)

	c.Archive.DatabaseURL = getEnv("ARCHIVE_DATABASE_URL", c.Archive.DatabaseURL)

	c.Publish.QueueSize = getEnvAsInt("PUBLISH_QUEUE_SIZE", c.Publish.QueueSize)
	c.Publish.Workers = getEnvAsInt("PUBLISH_WORKERS", c.Publish.Workers)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	p := c.Poll
	switch {
	case p.MinDurationSec <= 0:
		return fmt.Errorf("poll.min_duration_sec must be positive, got %d", p.MinDurationSec)
	case p.MaxDurationSec < p.MinDurationSec:
		return fmt.Errorf("poll.max_duration_sec (%d) is below poll.min_duration_sec (%d)", p.MaxDurationSec, p.MinDurationSec)
	case p.DefaultDurationSec < p.MinDurationSec || p.DefaultDurationSec > p.MaxDurationSec:
		return fmt.Errorf("poll.default_duration_sec (%d) is outside [%d, %d]", p.DefaultDurationSec, p.MinDurationSec, p.MaxDurationSec)
	case p.TickIntervalMs <= 0:
		return fmt.Errorf("poll.tick_interval_ms must be positive, got %d", p.TickIntervalMs)
	case p.RetentionSec <= 0:
		return fmt.Errorf("poll.retention_sec must be positive, got %d", p.RetentionSec)
	case p.CodeLength < 4 || p.CodeLength > 32:
		return fmt.Errorf("poll.code_length must be between 4 and 32, got %d", p.CodeLength)
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required when nats.url is set")
	}
	return nil
}

// PollConfig converts the poll section into the room engine's config.
func (c *Config) PollConfig() poll.Config {
	return poll.Config{
		MinDuration:     time.Duration(c.Poll.MinDurationSec) * time.Second,
		MaxDuration:     time.Duration(c.Poll.MaxDurationSec) * time.Second,
		DefaultDuration: time.Duration(c.Poll.DefaultDurationSec) * time.Second,
		TickInterval:    time.Duration(c.Poll.TickIntervalMs) * time.Millisecond,
		RetentionPeriod: time.Duration(c.Poll.RetentionSec) * time.Second,
		CodeLength:      c.Poll.CodeLength,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
