package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	Source   SourceConfig   `toml:"source"`
	Sink     SinkConfig     `toml:"sink"`
	State    StateConfig    `toml:"state"`
	Schedule ScheduleConfig `toml:"schedule"`
	Retry    RetryConfig    `toml:"retry"`
	Events   EventsConfig   `toml:"events"`
}

type SourceConfig struct {
	Host      string `toml:"host" envconfig:"DB_HOST"`
	Port      int    `toml:"port" envconfig:"DB_PORT"`
	User      string `toml:"user" envconfig:"DB_USER"`
	Password  string `toml:"password" envconfig:"DB_PASSWORD"`
	DBName    string `toml:"dbname" envconfig:"DB_NAME"`
	ChunkSize int    `toml:"chunk_size"`
}

func (c SourceConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

type SinkConfig struct {
	Protocol   string            `toml:"protocol"`
	Host       string            `toml:"host" envconfig:"ES_HOST"`
	Port       int               `toml:"port" envconfig:"ES_PORT"`
	BulkPath   string            `toml:"bulk_path"`
	HealthPath string            `toml:"health_path"`
	Headers    map[string]string `toml:"headers"`
	// ChunkDelay is the minimum spacing between bulk uploads, in seconds.
	ChunkDelay float64 `toml:"chunk_delay"`
}

func (c SinkConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Host, c.Port)
}

func (c SinkConfig) ChunkDelayDuration() time.Duration {
	return time.Duration(c.ChunkDelay * float64(time.Second))
}

type StateConfig struct {
	FilePath string `toml:"file_path" envconfig:"STATE_FILE"`
}

type ScheduleConfig struct {
	// Interval between sync cycles, in seconds.
	Interval int `toml:"interval"`
}

func (c ScheduleConfig) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	// Delay is the initial backoff delay, in seconds.
	Delay   int     `toml:"delay"`
	Backoff float64 `toml:"backoff"`
}

func (c RetryConfig) DelayDuration() time.Duration {
	return time.Duration(c.Delay) * time.Second
}

type EventsConfig struct {
	// NSQDAddr enables the progress notifier when set, e.g. "nsqd:4150".
	NSQDAddr string `toml:"nsqd_addr" envconfig:"NSQD_HOST"`
	Topic    string `toml:"topic"`
}

// Load reads the TOML config file (path from ETL_CONFIG, default config.toml),
// then overlays environment variables so credentials never have to live in the
// file. A missing file is fine; env-only deployments are supported.
func Load() (*Config, error) {
	// Env vars may also come from a local .env; absence is not an error.
	_ = godotenv.Load(".env")

	cfg := defaults()

	path := os.Getenv("ETL_CONFIG")
	if path == "" {
		path = "config.toml"
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Source: SourceConfig{
			Host:      "127.0.0.1",
			Port:      5432,
			User:      "postgres",
			DBName:    "movies",
			ChunkSize: 100,
		},
		Sink: SinkConfig{
			Protocol:   "http",
			Host:       "127.0.0.1",
			Port:       9200,
			BulkPath:   "/_bulk",
			HealthPath: "/",
			Headers:    map[string]string{"Content-Type": "application/x-ndjson"},
			ChunkDelay: 1,
		},
		State:    StateConfig{FilePath: "storage.json"},
		Schedule: ScheduleConfig{Interval: 5},
		Retry:    RetryConfig{MaxAttempts: 4, Delay: 3, Backoff: 2},
		Events:   EventsConfig{Topic: TopicSyncProgress},
	}
}

func (c *Config) Validate() error {
	if c.Source.Host == "" {
		return fmt.Errorf("%w: source.host", ErrMissingRequired)
	}
	if c.Source.User == "" {
		return fmt.Errorf("%w: source.user", ErrMissingRequired)
	}
	if c.Source.DBName == "" {
		return fmt.Errorf("%w: source.dbname", ErrMissingRequired)
	}
	if c.Source.ChunkSize <= 0 {
		return fmt.Errorf("source.chunk_size must be positive, got %d", c.Source.ChunkSize)
	}
	if c.Sink.Host == "" {
		return fmt.Errorf("%w: sink.host", ErrMissingRequired)
	}
	if c.State.FilePath == "" {
		return fmt.Errorf("%w: state.file_path", ErrMissingRequired)
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive, got %d", c.Schedule.Interval)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
