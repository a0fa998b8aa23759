// Package config loads handleprobe settings: compiled defaults, then an
// optional YAML file, then HANDLEPROBE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"handleprobe/internal/egress"
	"handleprobe/internal/fetch"
	"handleprobe/internal/platform/timeouts"
	"handleprobe/internal/probe"
)

const EnvPrefix = "HANDLEPROBE_"

type Config struct {
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	// Registry is a WhatsMyName-format file; empty means the embedded list.
	Registry string       `yaml:"registry" env:"REGISTRY"`
	Probe    ProbeConfig  `yaml:"probe" envPrefix:"PROBE_"`
	Fetch    FetchConfig  `yaml:"fetch" envPrefix:"FETCH_"`
	Backup   BackupConfig `yaml:"backup" envPrefix:"BACKUP_"`
	// OTelEndpoint enables tracing when set.
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr" env:"ADDR"`
	SessionIdle time.Duration `yaml:"session_idle" env:"SESSION_IDLE"`
}

type ProbeConfig struct {
	MaxSites          int           `yaml:"max_sites" env:"MAX_SITES"`
	BatchSize         int           `yaml:"batch_size" env:"BATCH_SIZE"`
	PriorityBatchSize int           `yaml:"priority_batch_size" env:"PRIORITY_BATCH_SIZE"`
	Delay             time.Duration `yaml:"delay" env:"DELAY"`
	PriorityDelay     time.Duration `yaml:"priority_delay" env:"PRIORITY_DELAY"`
	Priority          []string      `yaml:"priority" env:"PRIORITY"`
}

type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	UserAgent         string        `yaml:"user_agent" env:"USER_AGENT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int           `yaml:"burst" env:"BURST"`
}

type BackupConfig struct {
	Endpoints        []string      `yaml:"endpoints" env:"ENDPOINTS"`
	RetryProbability float64       `yaml:"retry_probability" env:"RETRY_PROBABILITY"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

func Default() Config {
	opts := probe.DefaultOptions()
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			SessionIdle: timeouts.SessionIdle,
		},
		Probe: ProbeConfig{
			MaxSites:          opts.MaxSites,
			BatchSize:         opts.BatchSize,
			PriorityBatchSize: opts.PriorityBatchSize,
			Delay:             opts.Delay,
			PriorityDelay:     opts.PriorityDelay,
			Priority:          append([]string(nil), opts.Priority...),
		},
		Fetch: FetchConfig{
			Timeout:      fetch.DefaultTimeout,
			MaxBodyBytes: fetch.DefaultMaxBodyBytes,
			UserAgent:    fetch.DefaultUserAgent,
		},
		Backup: BackupConfig{
			RetryProbability: egress.DefaultRetryProbability,
			Timeout:          egress.DefaultTimeout,
		},
	}
}

// Load layers path (optional) and the environment over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ParseEnv overrides fields of target from HANDLEPROBE_* variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Probe.MaxSites < 0 {
		errs = append(errs, errors.New("probe.max_sites must not be negative"))
	}
	if c.Probe.BatchSize <= 0 {
		errs = append(errs, errors.New("probe.batch_size must be positive"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Backup.RetryProbability < 0 || c.Backup.RetryProbability > 1 {
		errs = append(errs, fmt.Errorf("backup.retry_probability %v outside [0,1]", c.Backup.RetryProbability))
	}
	return errors.Join(errs...)
}

func (c Config) ProbeOptions() probe.Options {
	return probe.Options{
		MaxSites:          c.Probe.MaxSites,
		BatchSize:         c.Probe.BatchSize,
		PriorityBatchSize: c.Probe.PriorityBatchSize,
		Delay:             c.Probe.Delay,
		PriorityDelay:     c.Probe.PriorityDelay,
		Timeout:           c.Fetch.Timeout,
		BackupTimeout:     c.Backup.Timeout,
		Priority:          c.Probe.Priority,
	}
}

func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		UserAgent:         c.Fetch.UserAgent,
		MaxBodyBytes:      c.Fetch.MaxBodyBytes,
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		Burst:             c.Fetch.Burst,
	}
}

func (c Config) EgressConfig() egress.Config {
	return egress.Config{
		Endpoints:        c.Backup.Endpoints,
		RetryProbability: c.Backup.RetryProbability,
		Fetch:            c.FetchOptions(),
	}
}
