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

package mysql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/mysqlctl/internal/lifecycle"
	"github.com/tombee/mysqlctl/internal/log"
	"github.com/tombee/mysqlctl/internal/tracing"
)

const tracerName = "github.com/tombee/mysqlctl/internal/mysql"

// DefaultAutoShutdownTimeout bounds the shutdown of an AutoShutdown
// instance when the calling process exits.
const DefaultAutoShutdownTimeout = 30 * time.Second

var versionPattern = regexp.MustCompile(`^.*\sVer\s+(\d+\.\d+\.\d+)\S*\s.*$`)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets where lifecycle events are recorded.
func WithRecorder(r lifecycle.Recorder) ServerOption {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithBackoff sets the polling schedule used while waiting for an instance
// to come up or go away.
func WithBackoff(b lifecycle.Backoff) ServerOption {
	return func(s *Server) {
		s.backoff = b
	}
}

// WithMetrics sets the collector for operation metrics.
func WithMetrics(mc *tracing.MetricsCollector) ServerOption {
	return func(s *Server) {
		s.metrics = mc
	}
}

// WithAutoShutdownTimeout bounds the shutdown hook of AutoShutdown instances.
func WithAutoShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.autoShutdownTimeout = d
	}
}

// WithEnv sets the environment of every spawned binary.
func WithEnv(env []string) ServerOption {
	return func(s *Server) {
		s.spawner.WithEnv(env)
	}
}

// WithDetachedOutput sends the output of started instances to the error
// log of their data directory instead of to this process. Use it when the
// instance must outlive the caller.
func WithDetachedOutput() ServerOption {
	return func(s *Server) {
		s.detachOutput = true
	}
}

// Server manages instances of one MySQL binary distribution. It holds no
// per-instance state: every call addresses an instance by its data
// directory, and a Start hands ownership of the new process to the
// returned Supervisor.
type Server struct {
	dist     *Distribution
	spawner  *lifecycle.Spawner
	logger   *slog.Logger
	recorder lifecycle.Recorder
	backoff  lifecycle.Backoff
	metrics  *tracing.MetricsCollector

	autoShutdownTimeout time.Duration
	detachOutput        bool
}

// NewServer locates the distribution at distPath. It fails with a
// *DistributionError when no mysqld binary can be found.
func NewServer(distPath string, opts ...ServerOption) (*Server, error) {
	dist, err := LocateDistribution(distPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		dist:                dist,
		spawner:             lifecycle.NewSpawner().WithDir(dist.Path),
		logger:              slog.Default(),
		recorder:            lifecycle.NopRecorder{},
		backoff:             lifecycle.DefaultBackoff(),
		autoShutdownTimeout: DefaultAutoShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.WithComponent(s.logger, "mysql")

	if s.metrics == nil {
		// Instruments from the global provider follow a provider installed later.
		if mc, err := tracing.NewMetricsCollector(otel.GetMeterProvider()); err == nil {
			s.metrics = mc
		}
	}

	return s, nil
}

// Distribution returns the located distribution.
func (s *Server) Distribution() *Distribution {
	return s.dist
}

func (s *Server) String() string {
	return "mysql.Server@" + s.dist.Path
}

// Version returns the server version reported by mysqld --version, for
// example "5.6.21".
func (s *Server) Version(ctx context.Context) (version string, err error) {
	ctx, done := s.operation(ctx, "version")
	defer func() { done(err) }()

	h, err := s.spawner.Run(ctx, s.dist.Mysqld, "--version")
	if err != nil {
		return "", err
	}

	out := h.Stdout()
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return "", &VersionParseError{RawOutput: out}
	}
	return m[1], nil
}

// InitializeDataDirectory creates dataDir and populates it with the system
// tables. It is not idempotent; initializing a populated directory fails
// the way the underlying tool fails.
func (s *Server) InitializeDataDirectory(ctx context.Context, dataDir string) (err error) {
	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}

	ctx, done := s.operation(ctx, "initialize", attribute.String("mysql.data_dir", dataDir))
	defer func() {
		recordInitialization(err)
		done(err)
	}()

	logger := log.WithDataDir(s.logger, dataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	binary, args := s.dist.InstallDB, installDBArgs(s.dist, dataDir)
	if binary == "" {
		binary, args = s.dist.Mysqld, initializeArgs(s.dist, dataDir)
	}

	s.record(ctx, logger, lifecycle.Event{
		Event:   lifecycle.EventInitialize,
		DataDir: dataDir,
		Success: true,
		Message: "Data directory initialization initiated",
		Flags:   lifecycle.FlagsFromArgs(args),
	})

	logger.Info("initializing data directory", "binary", filepath.Base(binary))
	h, err := s.spawner.Run(ctx, binary, args...)
	if h != nil {
		h.StreamStdout(log.LineSink(logger, "stdout"))
	}
	if err != nil {
		s.record(ctx, logger, lifecycle.Event{
			Event:   lifecycle.EventInitializeFailure,
			DataDir: dataDir,
			Error:   err.Error(),
		})
		return err
	}

	logger.Info("data directory initialized")
	return nil
}

// Start launches an instance serving dataDir and waits until it answers a
// ping. If another instance already serves dataDir, Start fails with
// *InstanceAlreadyRunningError unless spec has ShutdownExisting, in which
// case that instance is stopped first. If the new process exits before it
// becomes reachable, Start fails with *lifecycle.StartupFailedError. If ctx
// ends first, the new process is killed and ctx's error is returned.
func (s *Server) Start(ctx context.Context, dataDir string, spec InstanceSpec) (sup *lifecycle.Supervisor, err error) {
	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	ctx, done := s.operation(ctx, "start",
		attribute.String("mysql.data_dir", dataDir),
		attribute.String("mysql.spec", spec.String()))
	defer func() { done(err) }()

	logger := log.WithDataDir(s.logger, dataDir)

	mysqldSafe, err := s.dist.require("mysqld_safe", s.dist.MysqldSafe)
	if err != nil {
		return nil, err
	}
	admin, err := s.admin(dataDir)
	if err != nil {
		return nil, err
	}

	if admin.Ping(ctx) {
		if !spec.Has(ShutdownExisting) {
			s.record(ctx, logger, lifecycle.Event{
				Event:   lifecycle.EventAlreadyRunning,
				DataDir: dataDir,
				Success: true,
				Message: "Instance already running",
			})
			return nil, &InstanceAlreadyRunningError{DataDir: dataDir}
		}

		logger.Info("shutting down existing instance")
		s.record(ctx, logger, lifecycle.Event{
			Event:   lifecycle.EventShutdownExisting,
			DataDir: dataDir,
			Success: true,
			Message: "Stopping existing instance before start",
		})
		if err := lifecycle.ShutdownUnowned(ctx, admin, s.backoff); err != nil {
			return nil, fmt.Errorf("failed to shut down existing instance in %s: %w", dataDir, err)
		}
	}

	args := startArgs(s.dist, dataDir, spec)
	s.record(ctx, logger, lifecycle.Event{
		Event:      lifecycle.EventStart,
		DataDir:    dataDir,
		Success:    true,
		Message:    "Instance start initiated",
		Flags:      lifecycle.FlagsFromArgs(args),
		ConfigFile: spec.DefaultsFile,
	})

	spawner := s.spawner
	if s.detachOutput {
		spawner = spawner.WithOutputFile(detachedOutputPath(dataDir))
	}
	h, err := spawner.Spawn(mysqldSafe, args...)
	if err != nil {
		s.recordStartFailure(ctx, logger, dataDir, 0, err)
		return nil, err
	}
	if !s.detachOutput {
		h.StreamStdout(log.LineSink(logger, "stdout"))
	}

	opts := []lifecycle.SupervisorOption{
		lifecycle.WithLogger(s.logger),
		lifecycle.WithRecorder(s.recorder),
		lifecycle.WithPollBackoff(s.backoff),
		lifecycle.WithSocketWatch(SocketPath(dataDir)),
		lifecycle.WithErrorLog(ErrorLogPath(dataDir)),
	}
	if spec.Has(AutoShutdown) {
		opts = append(opts, lifecycle.WithAutoShutdown(s.autoShutdownTimeout))
	}

	sup = lifecycle.NewSupervisor(dataDir, h, admin, opts...)
	if err := sup.AwaitStartup(ctx); err != nil {
		if ctx.Err() != nil {
			// Nobody would own the process after we return.
			_ = sup.Kill()
		}
		s.recordStartFailure(ctx, logger, dataDir, h.PID(), err)
		return nil, err
	}

	s.record(ctx, logger, lifecycle.Event{
		Event:      lifecycle.EventStartSuccess,
		InstanceID: sup.ID(),
		DataDir:    dataDir,
		PID:        h.PID(),
		Success:    true,
		Message:    "Instance started successfully",
	})
	return sup, nil
}

// IsInstanceRunningIn reports whether an instance serving dataDir answers a
// ping. It does not distinguish instances started by this process from
// others.
func (s *Server) IsInstanceRunningIn(ctx context.Context, dataDir string) bool {
	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return false
	}
	admin, err := s.admin(dataDir)
	if err != nil {
		return false
	}
	return admin.Ping(ctx)
}

// ShutdownInstanceIn asks the instance serving dataDir to stop. It returns
// once the request has been accepted and does not wait for the process to
// exit.
func (s *Server) ShutdownInstanceIn(ctx context.Context, dataDir string) (err error) {
	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}

	ctx, done := s.operation(ctx, "shutdown", attribute.String("mysql.data_dir", dataDir))
	defer func() { done(err) }()

	logger := log.WithDataDir(s.logger, dataDir)

	admin, err := s.admin(dataDir)
	if err != nil {
		return err
	}

	s.record(ctx, logger, lifecycle.Event{
		Event:   lifecycle.EventStop,
		DataDir: dataDir,
		Success: true,
		Message: "Instance stop requested",
	})
	if err := admin.Shutdown(ctx); err != nil {
		s.record(ctx, logger, lifecycle.Event{
			Event:   lifecycle.EventStopFailure,
			DataDir: dataDir,
			Message: "Failed to stop instance",
			Error:   err.Error(),
		})
		return err
	}

	logger.Info("shutdown requested")
	return nil
}

// WaitUntilStopped polls the instance serving dataDir until it no longer
// answers pings.
func (s *Server) WaitUntilStopped(ctx context.Context, dataDir string) error {
	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}
	admin, err := s.admin(dataDir)
	if err != nil {
		return err
	}
	return lifecycle.WaitUntilUnreachable(ctx, admin, s.backoff)
}

func (s *Server) admin(dataDir string) (*Admin, error) {
	binary, err := s.dist.require("mysqladmin", s.dist.Mysqladmin)
	if err != nil {
		return nil, err
	}
	return &Admin{
		binary:  binary,
		dataDir: dataDir,
		spawner: s.spawner,
		logger:  log.WithDataDir(s.logger, dataDir),
	}, nil
}

// operation starts a span for a facade call. The returned function ends
// the span and records the duration.
func (s *Server) operation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "mysql."+name,
		trace.WithAttributes(append(attrs, attribute.String("mysql.basedir", s.dist.Path))...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		s.metrics.RecordOperation(context.WithoutCancel(ctx), name, time.Since(start), err)
	}
}

func (s *Server) recordStartFailure(ctx context.Context, logger *slog.Logger, dataDir string, pid int, err error) {
	event := lifecycle.Event{
		Event:   lifecycle.EventStartFailure,
		DataDir: dataDir,
		PID:     pid,
		Message: "Instance failed to start",
		Error:   err.Error(),
	}
	var failed *lifecycle.StartupFailedError
	if errors.As(err, &failed) {
		event.ExitCode = failed.ExitCode
	}
	s.record(ctx, logger, event)
}

func (s *Server) record(ctx context.Context, logger *slog.Logger, event lifecycle.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("failed to record lifecycle event", log.EventKey, event.Event, log.Error(err))
	}
}
