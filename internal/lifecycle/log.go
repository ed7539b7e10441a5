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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Lifecycle event names.
const (
	EventStart             = "start"
	EventStartSuccess      = "start_success"
	EventStartFailure      = "start_failure"
	EventAlreadyRunning    = "already_running"
	EventShutdownExisting  = "shutdown_existing"
	EventStop              = "stop"
	EventStopSuccess       = "stop_success"
	EventStopFailure       = "stop_failure"
	EventTerminated        = "terminated"
	EventInitialize        = "initialize"
	EventInitializeFailure = "initialize_failure"
)

// Event represents a lifecycle event of a server instance.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Event      string            `json:"event"`
	InstanceID string            `json:"instance_id,omitempty"`
	DataDir    string            `json:"data_dir"`
	PID        int               `json:"pid,omitempty"`
	ExitCode   int               `json:"exit_code,omitempty"`
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Flags      map[string]string `json:"flags,omitempty"`
	ConfigFile string            `json:"config_file,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Recorder persists lifecycle events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// NopRecorder discards every event.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) error { return nil }

// MultiRecorder fans an event out to several recorders.
type MultiRecorder []Recorder

// Record implements Recorder. Every recorder is attempted; failures are joined.
func (m MultiRecorder) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EventLog appends lifecycle events to a file as JSON lines.
type EventLog struct {
	mu      sync.Mutex
	logPath string
}

// NewEventLog creates a new lifecycle event log.
func NewEventLog(logPath string) *EventLog {
	return &EventLog{
		logPath: logPath,
	}
}

// Path returns the location of the log file.
func (l *EventLog) Path() string {
	return l.logPath
}

// Record implements Recorder.
func (l *EventLog) Record(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.writeEvent(event)
}

// writeEvent appends a lifecycle event to the log file.
func (l *EventLog) writeEvent(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	logDir := filepath.Dir(l.logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// FlagsFromArgs converts server arguments to a map of flags for logging.
// Both "--key=value" and "--key value" forms are understood.
func FlagsFromArgs(args []string) map[string]string {
	flags := make(map[string]string)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if !strings.HasPrefix(arg, "-") {
			continue
		}

		key := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}

		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			flags[key] = args[i+1]
			i++
		} else {
			flags[key] = "true"
		}
	}

	return flags
}
