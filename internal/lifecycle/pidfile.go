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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidPID is returned when the PID file contains invalid data.
var ErrInvalidPID = errors.New("invalid PID in file")

// PIDFile reads a PID file written by the server. The server owns the file;
// this type never creates or removes it.
type PIDFile struct {
	path string
}

// NewPIDFile returns a reader for the PID file at path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the location of the PID file.
func (p *PIDFile) Path() string {
	return p.path
}

// Read reads the PID from the file.
// Returns ErrInvalidPID if the file contains non-numeric data.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPID, pidStr)
	}

	if pid <= 0 {
		return 0, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}

	return pid, nil
}

// Exists returns true if the PID file exists.
func (p *PIDFile) Exists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// Inspect reads the PID file and reports on the process it names. A missing
// file yields (nil, nil). A PID that is alive but not a server process is
// reported as not running, together with ErrNotServerProcess.
func (p *PIDFile) Inspect() (*ProcessInfo, error) {
	pid, err := p.Read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	info := GetProcessInfo(pid)
	if info.Running && !IsServerProcess(pid) {
		info.Running = false
		return info, fmt.Errorf("pid %d: %w", pid, ErrNotServerProcess)
	}
	return info, nil
}
