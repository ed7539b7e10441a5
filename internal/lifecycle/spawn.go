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
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultWaitDelay bounds how long output copying may continue after the
// child exits. Grandchildren that inherit stdout would otherwise keep Wait
// blocked for as long as they live.
const DefaultWaitDelay = 2 * time.Second

// Spawner starts child processes in their own process group.
type Spawner struct {
	// Env is the environment passed to the child process.
	Env []string

	// Dir is the working directory of the child process.
	Dir string

	// WaitDelay is applied to every exec.Cmd.
	WaitDelay time.Duration

	// OutputFile, when set, receives the child's stdout and stderr directly.
	// No pipe to this process is involved, so the child can keep writing
	// after this process exits. The Handle's captured output stays empty.
	OutputFile string
}

// NewSpawner creates a new process spawner.
func NewSpawner() *Spawner {
	return &Spawner{
		Env:       os.Environ(),
		WaitDelay: DefaultWaitDelay,
	}
}

// WithEnv sets the environment variables for spawned processes.
func (s *Spawner) WithEnv(env []string) *Spawner {
	s.Env = env
	return s
}

// WithDir sets the working directory for spawned processes.
func (s *Spawner) WithDir(dir string) *Spawner {
	s.Dir = dir
	return s
}

// WithOutputFile returns a copy of s whose children write stdout and
// stderr to path, appending.
func (s *Spawner) WithOutputFile(path string) *Spawner {
	c := *s
	c.OutputFile = path
	return &c
}

// Spawn starts binary with args and returns immediately. The process:
// - Runs in its own process group, so it can be killed as a unit
// - Has stdin closed
// - Has stdout and stderr captured by the returned Handle, or written to
//   OutputFile when set
func (s *Spawner) Spawn(binary string, args ...string) (*Handle, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = s.Env
	cmd.Dir = s.Dir
	cmd.Stdin = nil
	cmd.WaitDelay = s.WaitDelay

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if s.OutputFile == "" {
		return startHandle(cmd)
	}

	out, err := os.OpenFile(s.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, &ProcessLaunchError{Command: cmd.Args, Err: err}
	}
	// The child holds its own descriptor once started.
	defer out.Close()
	cmd.Stdout = out
	cmd.Stderr = out

	return startHandle(cmd)
}

// Run spawns binary and waits for it to exit successfully. The Handle is
// returned even when the process fails, so callers can inspect its output.
// If ctx is done first, the process group is killed.
func (s *Spawner) Run(ctx context.Context, binary string, args ...string) (*Handle, error) {
	h, err := s.Spawn(binary, args...)
	if err != nil {
		return nil, err
	}

	if err := h.WaitSuccess(ctx); err != nil {
		if ctx.Err() != nil {
			_ = h.Kill()
		}
		return h, err
	}
	return h, nil
}
