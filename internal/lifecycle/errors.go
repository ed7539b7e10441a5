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
	"fmt"
	"strings"
)

// ProcessLaunchError is returned when a process could not be started at all,
// for example because the binary does not exist or is not executable.
type ProcessLaunchError struct {
	Command []string
	Err     error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("unable to start %s: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *ProcessLaunchError) Unwrap() error {
	return e.Err
}

// ProcessFailureError is returned when a process ran to completion with a
// nonzero exit code.
type ProcessFailureError struct {
	Command  []string
	ExitCode int
	Stderr   string
}

func (e *ProcessFailureError) Error() string {
	return fmt.Sprintf("failed to run '%s', exit-code: %d, error: %s",
		strings.Join(e.Command, " "), e.ExitCode, e.Stderr)
}

// StartupFailedError is returned by Supervisor.AwaitStartup when the server
// process exits before it became reachable.
type StartupFailedError struct {
	DataDir  string
	ErrorLog string
	ExitCode int
}

func (e *StartupFailedError) Error() string {
	msg := fmt.Sprintf("instance in %s failed to start (exit-code: %d)", e.DataDir, e.ExitCode)
	if e.ErrorLog != "" {
		msg += ", see " + e.ErrorLog + " for details"
	}
	return msg
}
