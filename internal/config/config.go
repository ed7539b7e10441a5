// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/mysqlctl/internal/log"
	"github.com/tombee/mysqlctl/internal/tracing"
)

// Config is the mysqlctl configuration.
type Config struct {
	// Distribution is the root of the MySQL binary distribution.
	Distribution string `yaml:"distribution,omitempty"`

	// DataDir is the data directory used when a command is given none.
	DataDir string `yaml:"data_dir,omitempty"`

	Instance InstanceConfig `yaml:"instance"`
	Startup  StartupConfig  `yaml:"startup"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	History  HistoryConfig  `yaml:"history"`

	// LifecycleLog is a JSON lines file receiving every lifecycle event.
	// Empty disables it.
	LifecycleLog string `yaml:"lifecycle_log,omitempty"`

	Tracing tracing.Config `yaml:"tracing"`
}

// InstanceConfig holds defaults for started instances.
type InstanceConfig struct {
	Port             int    `yaml:"port,omitempty"`
	DefaultsFile     string `yaml:"defaults_file,omitempty"`
	ShutdownExisting bool   `yaml:"shutdown_existing,omitempty"`
	AutoShutdown     bool   `yaml:"auto_shutdown,omitempty"`
}

// StartupConfig controls waiting for an instance to become reachable.
type StartupConfig struct {
	// Timeout bounds a start. Zero waits until the process exits.
	Timeout     time.Duration `yaml:"timeout"`
	PollInitial time.Duration `yaml:"poll_initial"`
	PollMax     time.Duration `yaml:"poll_max"`
}

// ShutdownConfig controls stopping instances.
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint of the run command.
type MetricsConfig struct {
	// Addr is the listen address, for example ":9104". Empty disables it.
	Addr string `yaml:"addr,omitempty"`
}

// HistoryConfig configures the lifecycle event store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Startup: StartupConfig{
			Timeout:     60 * time.Second,
			PollInitial: 100 * time.Millisecond,
			PollMax:     500 * time.Millisecond,
		},
		Shutdown: ShutdownConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over the file. With an empty
// configPath the default config file is read when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if p, err := ConfigPath(); err == nil {
			if _, err := os.Stat(p); err == nil {
				configPath = p
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills zero values so minimal files work.
func (c *Config) applyDefaults() {
	def := Default()

	if c.Startup.PollInitial == 0 {
		c.Startup.PollInitial = def.Startup.PollInitial
	}
	if c.Startup.PollMax == 0 {
		c.Startup.PollMax = def.Startup.PollMax
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = def.Shutdown.Timeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.History.Enabled && c.History.Path == "" {
		if dir, err := StateDir(); err == nil {
			c.History.Path = filepath.Join(dir, "history.db")
		}
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = def.Tracing.ServiceName
	}

	c.Distribution = expandHome(c.Distribution)
	c.DataDir = expandHome(c.DataDir)
	c.Instance.DefaultsFile = expandHome(c.Instance.DefaultsFile)
	c.History.Path = expandHome(c.History.Path)
	c.LifecycleLog = expandHome(c.LifecycleLog)
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies environment overrides. Malformed numbers and
// durations are reported rather than ignored.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("MYSQLCTL_DIST"); val != "" {
		c.Distribution = expandHome(val)
	}
	if val := os.Getenv("MYSQLCTL_DATA_DIR"); val != "" {
		c.DataDir = expandHome(val)
	}
	if val := os.Getenv("MYSQLCTL_DEFAULTS_FILE"); val != "" {
		c.Instance.DefaultsFile = expandHome(val)
	}
	if val := os.Getenv("MYSQLCTL_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return &ConfigError{Key: "MYSQLCTL_PORT", Reason: "must be an integer", Cause: err}
		}
		c.Instance.Port = port
	}
	if val := os.Getenv("MYSQLCTL_STARTUP_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return &ConfigError{Key: "MYSQLCTL_STARTUP_TIMEOUT", Reason: "must be a duration", Cause: err}
		}
		c.Startup.Timeout = d
	}
	if val := os.Getenv("MYSQLCTL_SHUTDOWN_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return &ConfigError{Key: "MYSQLCTL_SHUTDOWN_TIMEOUT", Reason: "must be a duration", Cause: err}
		}
		c.Shutdown.Timeout = d
	}
	if val := os.Getenv("MYSQLCTL_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
	if val := os.Getenv("MYSQLCTL_HISTORY_PATH"); val != "" {
		c.History.Path = expandHome(val)
	}
	if val := os.Getenv("MYSQLCTL_LIFECYCLE_LOG"); val != "" {
		c.LifecycleLog = expandHome(val)
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
	if val := os.Getenv("LOG_SOURCE"); val == "1" || val == "true" {
		c.Log.AddSource = true
	}

	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Enabled = true
		c.Tracing.Exporters = append(c.Tracing.Exporters, tracing.ExporterConfig{
			Type:     "otlp",
			Endpoint: val,
		})
	}
	return nil
}

// Validate checks the configuration for errors. All problems are reported.
func (c *Config) Validate() error {
	var errs []error

	if c.Instance.Port < 0 || c.Instance.Port > 65535 {
		errs = append(errs, fmt.Errorf("instance.port must be between 0 and 65535, got %d", c.Instance.Port))
	}
	if c.Startup.Timeout < 0 {
		errs = append(errs, fmt.Errorf("startup.timeout must not be negative"))
	}
	if c.Startup.PollInitial <= 0 || c.Startup.PollMax < c.Startup.PollInitial {
		errs = append(errs, fmt.Errorf("startup.poll_max (%s) must be at least startup.poll_initial (%s)",
			c.Startup.PollMax, c.Startup.PollInitial))
	}
	if c.Shutdown.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown.timeout must be positive"))
	}
	if !log.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is invalid (must be trace, debug, info, warn, or error)", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("log.format %q is invalid (must be json or text)", c.Log.Format))
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, fmt.Errorf("history.path is required when history is enabled"))
	}
	if c.Tracing.Sampling.Rate < 0 || c.Tracing.Sampling.Rate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampling.rate must be between 0 and 1"))
	}
	for i, exp := range c.Tracing.Exporters {
		switch exp.Type {
		case "console", "none":
		case "otlp", "otlp_http":
			if exp.Endpoint == "" {
				errs = append(errs, fmt.Errorf("tracing.exporters[%d].endpoint is required for %s", i, exp.Type))
			}
		default:
			errs = append(errs, fmt.Errorf("tracing.exporters[%d].type %q is not supported", i, exp.Type))
		}
	}

	return errors.Join(errs...)
}

// LoggerConfig converts the log section into a logger config.
func (c *Config) LoggerConfig() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(strings.ToLower(c.Log.Format))
	cfg.AddSource = c.Log.AddSource
	return cfg
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
