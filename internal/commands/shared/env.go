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

package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/mysqlctl/internal/config"
	"github.com/tombee/mysqlctl/internal/history"
	"github.com/tombee/mysqlctl/internal/lifecycle"
	"github.com/tombee/mysqlctl/internal/log"
	"github.com/tombee/mysqlctl/internal/mysql"
	"github.com/tombee/mysqlctl/internal/tracing"
)

// providerOptionsForTest are applied by every Setup.
var providerOptionsForTest []tracing.ProviderOption

// SetProviderOptionsForTest makes Setup apply opts, for example a private
// Prometheus registry so repeated setups do not collide.
func SetProviderOptionsForTest(opts ...tracing.ProviderOption) {
	providerOptionsForTest = opts
}

// Env is what every command needs: configuration, logging, telemetry, the
// event recorders and a lazily created mysql.Server.
type Env struct {
	Config   *config.Config
	Logger   *slog.Logger
	Provider *tracing.Provider
	History  *history.Store
	Recorder lifecycle.Recorder

	server *mysql.Server
}

// Setup loads configuration and builds the environment. Global flags are
// applied on top of the configuration. Close must be called when done.
func Setup(ctx context.Context, opts ...tracing.ProviderOption) (*Env, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewUsageError("", err)
	}
	if d := GetDist(); d != "" {
		cfg.Distribution = d
	}

	logCfg := cfg.LoggerConfig()
	log.ApplyEnv(logCfg)
	switch {
	case GetVerbose():
		logCfg.Level = "debug"
	case GetQuiet():
		logCfg.Level = "warn"
	}
	logger := log.New(logCfg)

	tcfg := cfg.Tracing
	tcfg.ServiceVersion = version
	opts = append(append([]tracing.ProviderOption{}, providerOptionsForTest...), opts...)
	provider, err := tracing.NewProvider(ctx, tcfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	env := &Env{
		Config:   cfg,
		Logger:   logger,
		Provider: provider,
	}

	recorders := lifecycle.MultiRecorder{}
	if cfg.LifecycleLog != "" {
		recorders = append(recorders, lifecycle.NewEventLog(cfg.LifecycleLog))
	}
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			// History is best effort; the instance commands still work.
			logger.Warn("event history unavailable", "path", cfg.History.Path, log.Error(err))
		} else {
			env.History = store
			recorders = append(recorders, store)
		}
	}
	env.Recorder = recorders

	return env, nil
}

// Server returns the mysql.Server for the configured distribution. opts
// apply only to the call that builds it.
func (e *Env) Server(opts ...mysql.ServerOption) (*mysql.Server, error) {
	if e.server != nil {
		return e.server, nil
	}
	if e.Config.Distribution == "" {
		return nil, NewUsageError("no MySQL distribution configured (use --dist or MYSQLCTL_DIST)", nil)
	}

	opts = append([]mysql.ServerOption{
		mysql.WithLogger(e.Logger),
		mysql.WithRecorder(e.Recorder),
		mysql.WithBackoff(e.Backoff()),
		mysql.WithMetrics(e.Provider.MetricsCollector()),
		mysql.WithAutoShutdownTimeout(e.Config.Shutdown.Timeout),
	}, opts...)
	srv, err := mysql.NewServer(e.Config.Distribution, opts...)
	if err != nil {
		return nil, Classify("", err)
	}
	e.server = srv
	return srv, nil
}

// Backoff returns the configured polling schedule.
func (e *Env) Backoff() lifecycle.Backoff {
	return lifecycle.DefaultBackoff().WithBackoff(e.Config.Startup.PollInitial, e.Config.Startup.PollMax, 0)
}

// DataDir returns the data directory from args, falling back to the
// configured one.
func (e *Env) DataDir(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if e.Config.DataDir != "" {
		return e.Config.DataDir, nil
	}
	return "", NewUsageError("no data directory given (pass one or set MYSQLCTL_DATA_DIR)", nil)
}

// WithTimeout bounds ctx by d. A non-positive d leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Close flushes telemetry and closes the history store.
func (e *Env) Close(ctx context.Context) error {
	var errs []error
	if err := e.Provider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if e.History != nil {
		if err := e.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history close: %w", err))
		}
	}
	return errors.Join(errs...)
}
