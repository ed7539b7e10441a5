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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mysqlctl/internal/tracing"
)

// isolate points the XDG directories at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	for _, key := range []string{
		"MYSQLCTL_DIST", "MYSQLCTL_DATA_DIR", "MYSQLCTL_PORT", "MYSQLCTL_DEFAULTS_FILE",
		"MYSQLCTL_STARTUP_TIMEOUT", "MYSQLCTL_SHUTDOWN_TIMEOUT", "MYSQLCTL_METRICS_ADDR",
		"MYSQLCTL_HISTORY_PATH", "MYSQLCTL_LIFECYCLE_LOG", "LOG_LEVEL", "LOG_FORMAT",
		"LOG_SOURCE", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Startup.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Startup.PollInitial)
	assert.Equal(t, 500*time.Millisecond, cfg.Startup.PollMax)
	assert.Equal(t, 30*time.Second, cfg.Shutdown.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(dir, "state", "mysqlctl", "history.db"), cfg.History.Path)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "mysqlctl", cfg.Tracing.ServiceName)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
distribution: /opt/mysql-5.6.21
data_dir: /var/lib/mysqlctl
instance:
  port: 3307
  shutdown_existing: true
startup:
  timeout: 2m
log:
  level: debug
  format: json
history:
  enabled: false
tracing:
  enabled: true
  service_name: ci-db
  exporters:
    - type: otlp
      endpoint: localhost:4317
      insecure: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/mysql-5.6.21", cfg.Distribution)
	assert.Equal(t, "/var/lib/mysqlctl", cfg.DataDir)
	assert.Equal(t, 3307, cfg.Instance.Port)
	assert.True(t, cfg.Instance.ShutdownExisting)
	assert.Equal(t, 2*time.Minute, cfg.Startup.Timeout)
	// Unset values keep their defaults.
	assert.Equal(t, 100*time.Millisecond, cfg.Startup.PollInitial)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.History.Enabled)
	assert.Empty(t, cfg.History.Path)
	assert.Equal(t, "ci-db", cfg.Tracing.ServiceName)
	require.Len(t, cfg.Tracing.Exporters, 1)
	assert.True(t, cfg.Tracing.Exporters[0].Insecure)
}

func TestLoad_DefaultConfigFile(t *testing.T) {
	dir := isolate(t)
	cfgDir := filepath.Join(dir, "config", "mysqlctl")
	require.NoError(t, os.MkdirAll(cfgDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("distribution: /opt/mysql\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/opt/mysql", cfg.Distribution)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "distribution: /opt/file\ninstance:\n  port: 3307\n")
	t.Setenv("MYSQLCTL_DIST", "/opt/env")
	t.Setenv("MYSQLCTL_PORT", "3310")
	t.Setenv("MYSQLCTL_STARTUP_TIMEOUT", "5s")
	t.Setenv("MYSQLCTL_METRICS_ADDR", ":9104")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/env", cfg.Distribution)
	assert.Equal(t, 3310, cfg.Instance.Port)
	assert.Equal(t, 5*time.Second, cfg.Startup.Timeout)
	assert.Equal(t, ":9104", cfg.Metrics.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Tracing.Enabled)
	require.Len(t, cfg.Tracing.Exporters, 1)
	assert.Equal(t, "collector:4317", cfg.Tracing.Exporters[0].Endpoint)
}

func TestLoad_MalformedEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MYSQLCTL_PORT", "not-a-port")

	_, err := Load("")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "MYSQLCTL_PORT", cfgErr.Key)
}

func TestLoad_MissingFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "config_file", cfgErr.Key)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_HomeExpansion(t *testing.T) {
	isolate(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MYSQLCTL_DATA_DIR", "~/db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "db"), cfg.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port range", func(c *Config) { c.Instance.Port = 70000 }, "instance.port"},
		{"poll order", func(c *Config) { c.Startup.PollMax = time.Millisecond }, "startup.poll_max"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"history path", func(c *Config) { c.History.Path = "" }, "history.path"},
		{"shutdown timeout", func(c *Config) { c.Shutdown.Timeout = 0 }, "shutdown.timeout"},
		{"exporter type", func(c *Config) {
			c.Tracing.Exporters = append(c.Tracing.Exporters, tracingExporter("zipkin", ""))
		}, "not supported"},
		{"exporter endpoint", func(c *Config) {
			c.Tracing.Exporters = append(c.Tracing.Exporters, tracingExporter("otlp_http", ""))
		}, "endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.History.Path = "/tmp/history.db"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Instance.Port = -1
	cfg.Log.Level = "loud"
	cfg.History.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance.port")
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "trace"
	cfg.Log.Format = "JSON"
	cfg.Log.AddSource = true

	lc := cfg.LoggerConfig()
	assert.Equal(t, "trace", lc.Level)
	assert.Equal(t, "json", string(lc.Format))
	assert.True(t, lc.AddSource)
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Key: "instance.port", Reason: "out of range"}
	assert.Equal(t, "config error at instance.port: out of range", err.Error())

	err = &ConfigError{Reason: "bad", Cause: os.ErrNotExist}
	assert.Equal(t, "config error: bad: file does not exist", err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func tracingExporter(typ, endpoint string) tracing.ExporterConfig {
	return tracing.ExporterConfig{Type: typ, Endpoint: endpoint}
}
