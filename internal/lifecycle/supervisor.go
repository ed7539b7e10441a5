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

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the observable state of a supervised instance.
type State int

const (
	// StateStarting means the process is alive but has not answered a ping.
	StateStarting State = iota
	// StateRunning means the process answered a ping and has not exited.
	StateRunning
	// StateTerminated means the process has exited. It is final.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLogger sets the logger. Instance attributes are added to it.
func WithLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets where lifecycle events are recorded.
func WithRecorder(r Recorder) SupervisorOption {
	return func(s *Supervisor) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithPollBackoff sets the readiness polling schedule.
func WithPollBackoff(b Backoff) SupervisorOption {
	return func(s *Supervisor) {
		s.backoff = b
	}
}

// WithPollInterval bounds the readiness polling interval, keeping the
// default multiplier.
func WithPollInterval(initial, max time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.backoff = s.backoff.WithBackoff(initial, max, 0)
	}
}

// WithSocketWatch lets readiness polling wake early when path is created.
func WithSocketWatch(path string) SupervisorOption {
	return func(s *Supervisor) {
		s.socketPath = path
	}
}

// WithErrorLog names the server error log in startup failures.
func WithErrorLog(path string) SupervisorOption {
	return func(s *Supervisor) {
		s.errorLog = path
	}
}

// WithAutoShutdown registers a shutdown hook that stops the instance when
// the current process shuts down. timeout bounds the hook; zero means the
// hook only uses the context it is given.
func WithAutoShutdown(timeout time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.autoShutdown = true
		s.autoShutdownTimeout = timeout
	}
}

// Supervisor owns one spawned server process. It tracks whether the server
// has become reachable, notices when the process exits, and can ask the
// server to stop.
type Supervisor struct {
	id       string
	dataDir  string
	handle   *Handle
	ctrl     Controller
	logger   *slog.Logger
	recorder Recorder
	backoff  Backoff

	socketPath          string
	errorLog            string
	autoShutdown        bool
	autoShutdownTimeout time.Duration

	startedAt  time.Time
	ready      atomic.Bool
	terminated chan struct{}
	unregister func()

	shutdownMu   sync.Mutex
	shutdownSent bool
}

// NewSupervisor takes ownership of a freshly spawned process and starts
// monitoring it. ctrl must address the same server as handle.
func NewSupervisor(dataDir string, handle *Handle, ctrl Controller, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		id:         uuid.NewString(),
		dataDir:    dataDir,
		handle:     handle,
		ctrl:       ctrl,
		logger:     slog.Default(),
		recorder:   NopRecorder{},
		backoff:    DefaultBackoff(),
		startedAt:  time.Now(),
		terminated: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(
		slog.String("instance_id", s.id),
		slog.String("data_dir", dataDir),
		slog.Int("pid", handle.PID()),
	)

	if s.autoShutdown {
		s.unregister = RegisterShutdownHook("instance "+dataDir, s.shutdownHook)
	}

	instancesRunning.Inc()
	go s.monitor()
	return s
}

// monitor waits for the process to exit exactly once. The terminated
// event is recorded before Done is closed.
func (s *Supervisor) monitor() {
	_ = s.handle.Wait(context.Background())
	defer close(s.terminated)

	instancesRunning.Dec()
	if s.unregister != nil {
		s.unregister()
	}

	code := s.handle.ExitCode()
	recordTermination(code)
	s.logger.Info("instance terminated",
		"exit_code", code,
		"uptime", time.Since(s.startedAt).Round(time.Millisecond).String())
	s.record(Event{
		Event:    EventTerminated,
		ExitCode: code,
		Success:  code == 0,
		Message:  fmt.Sprintf("Process exited with code %d", code),
	})
}

// ID returns the unique id of this supervised instance.
func (s *Supervisor) ID() string { return s.id }

// DataDir returns the data directory the instance serves.
func (s *Supervisor) DataDir() string { return s.dataDir }

// PID returns the process id of the supervised process.
func (s *Supervisor) PID() int { return s.handle.PID() }

// Handle returns the underlying process handle.
func (s *Supervisor) Handle() *Handle { return s.handle }

// Done is closed when the supervised process has exited.
func (s *Supervisor) Done() <-chan struct{} { return s.terminated }

// ExitCode returns the exit code of the process, or -1 while it runs.
func (s *Supervisor) ExitCode() int { return s.handle.ExitCode() }

// IsRunning reports whether the process has not yet exited. It does not
// imply the server is ready.
func (s *Supervisor) IsRunning() bool {
	select {
	case <-s.terminated:
		return false
	default:
		return true
	}
}

// State returns the current state of the instance.
func (s *Supervisor) State() State {
	if !s.IsRunning() {
		return StateTerminated
	}
	if s.ready.Load() {
		return StateRunning
	}
	return StateStarting
}

// AwaitStartup blocks until the server answers a ping. Process exit is
// checked before every probe, so a server that dies during startup yields a
// *StartupFailedError rather than a timeout.
func (s *Supervisor) AwaitStartup(ctx context.Context) error {
	start := time.Now()
	wake, stopWatch := watchSocket(s.socketPath, s.logger)
	defer stopWatch()

	interval := s.backoff.Initial
	attempts := 0

	for {
		if !s.IsRunning() {
			recordStartup("failed")
			s.logger.Warn("instance exited during startup", "exit_code", s.handle.ExitCode(), "attempts", attempts)
			return &StartupFailedError{
				DataDir:  s.dataDir,
				ErrorLog: s.errorLog,
				ExitCode: s.handle.ExitCode(),
			}
		}

		if err := ctx.Err(); err != nil {
			recordStartup("cancelled")
			return fmt.Errorf("awaiting startup of instance in %s: %w", s.dataDir, err)
		}

		attempts++
		alive := s.ctrl.Ping(ctx)
		recordProbe(alive)
		if alive {
			s.ready.Store(true)
			elapsed := time.Since(start)
			startupDuration.Observe(elapsed.Seconds())
			recordStartup("ready")
			s.logger.Info("instance ready", "attempts", attempts, "duration_ms", elapsed.Milliseconds())
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			recordStartup("cancelled")
			return fmt.Errorf("awaiting startup of instance in %s: %w", s.dataDir, ctx.Err())
		case <-s.terminated:
			timer.Stop()
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}

		interval = s.backoff.Next(interval)
	}
}

// Shutdown asks the server to stop and waits for the process to exit. It is
// a no-op once the process has exited. Concurrent callers share a single
// shutdown request.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	start := time.Now()
	if err := s.requestShutdown(ctx); err != nil {
		// The process may have exited on its own after the check above. The
		// handle knows before the monitor has finished recording it.
		if s.handle.Exited() {
			select {
			case <-s.terminated:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("waiting for instance in %s to exit: %w", s.dataDir, ctx.Err())
			}
		}
		s.logger.Error("shutdown request failed", "error", err)
		s.record(Event{
			Event:   EventStopFailure,
			Success: false,
			Message: "Failed to stop instance",
			Error:   err.Error(),
		})
		return err
	}

	select {
	case <-s.terminated:
	case <-ctx.Done():
		return fmt.Errorf("waiting for instance in %s to exit: %w", s.dataDir, ctx.Err())
	}

	elapsed := time.Since(start)
	s.logger.Info("instance stopped", "duration_ms", elapsed.Milliseconds())
	s.record(Event{
		Event:    EventStopSuccess,
		ExitCode: s.handle.ExitCode(),
		Success:  true,
		Message:  fmt.Sprintf("Instance stopped (duration: %v)", elapsed.Round(time.Millisecond)),
	})
	return nil
}

func (s *Supervisor) requestShutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.shutdownSent {
		return nil
	}

	s.logger.Info("stopping instance")
	s.record(Event{Event: EventStop, Success: true, Message: "Instance stop initiated"})
	if err := s.ctrl.Shutdown(ctx); err != nil {
		return err
	}
	s.shutdownSent = true
	return nil
}

// Kill sends SIGKILL to the process group. It does not wait for the exit.
func (s *Supervisor) Kill() error {
	s.logger.Warn("killing instance")
	return s.handle.Kill()
}

func (s *Supervisor) shutdownHook(ctx context.Context) error {
	if s.autoShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.autoShutdownTimeout)
		defer cancel()
	}
	return s.Shutdown(ctx)
}

func (s *Supervisor) record(event Event) {
	event.Timestamp = time.Now()
	event.InstanceID = s.id
	event.DataDir = s.dataDir
	if event.PID == 0 {
		event.PID = s.handle.PID()
	}
	if err := s.recorder.Record(context.Background(), event); err != nil {
		s.logger.Warn("failed to record lifecycle event", "event", event.Event, "error", err)
	}
}
