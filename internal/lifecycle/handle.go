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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// Handle is a running (or finished) child process together with its
// captured output. A single goroutine owns the call to exec.Cmd.Wait, so
// any number of callers may wait on the same Handle concurrently.
type Handle struct {
	cmd     *exec.Cmd
	command []string

	stdout *lineTee
	stderr *lineTee

	done     chan struct{}
	exitCode int
	waitErr  error
}

func startHandle(cmd *exec.Cmd) (*Handle, error) {
	h := &Handle{
		cmd:      cmd,
		command:  append([]string(nil), cmd.Args...),
		stdout:   &lineTee{},
		stderr:   &lineTee{},
		done:     make(chan struct{}),
		exitCode: -1,
	}
	if cmd.Stdout == nil {
		cmd.Stdout = h.stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = h.stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, &ProcessLaunchError{Command: h.command, Err: err}
	}

	go h.wait()
	return h, nil
}

// wait is the only caller of cmd.Wait. exitCode and waitErr are written
// before done is closed and never after.
func (h *Handle) wait() {
	err := h.cmd.Wait()
	h.stdout.flush()
	h.stderr.flush()

	if h.cmd.ProcessState != nil {
		h.exitCode = h.cmd.ProcessState.ExitCode()
	}
	h.waitErr = err
	close(h.done)
}

// Wait blocks until the process has exited or ctx is done. It never reports
// the exit code; use ExitCode or WaitSuccess for that.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", h, ctx.Err())
	}
}

// WaitSuccess waits for the process and returns a *ProcessFailureError if it
// exited with a nonzero code.
func (h *Handle) WaitSuccess(ctx context.Context) error {
	if err := h.Wait(ctx); err != nil {
		return err
	}
	if code := h.ExitCode(); code != 0 {
		return &ProcessFailureError{
			Command:  h.command,
			ExitCode: code,
			Stderr:   h.Stderr(),
		}
	}
	return nil
}

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the process has terminated.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code, or -1 while the process is still running
// or if it was terminated by a signal.
func (h *Handle) ExitCode() int {
	if !h.Exited() {
		return -1
	}
	return h.exitCode
}

// Err returns the error reported by exec.Cmd.Wait, if any. Exit status
// errors are included.
func (h *Handle) Err() error {
	if !h.Exited() {
		return nil
	}
	return h.waitErr
}

// PID returns the operating system process id.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Command returns the program and arguments the process was started with.
func (h *Handle) Command() []string {
	return append([]string(nil), h.command...)
}

// Stdout returns everything the process wrote to standard output so far,
// with surrounding whitespace trimmed.
func (h *Handle) Stdout() string {
	return h.stdout.String()
}

// Stderr returns everything the process wrote to standard error so far,
// with surrounding whitespace trimmed.
func (h *Handle) Stderr() string {
	return h.stderr.String()
}

// StreamStdout delivers standard output to sink one line at a time. Lines
// written before the call are replayed first. Only one sink is active;
// a later call replaces the previous sink.
func (h *Handle) StreamStdout(sink func(line string)) {
	h.stdout.setSink(sink)
	if h.Exited() {
		h.stdout.flush()
	}
}

// Kill sends SIGKILL to the process group of the process.
func (h *Handle) Kill() error {
	if h.Exited() {
		return nil
	}
	return SignalGroup(h.PID(), syscall.SIGKILL)
}

func (h *Handle) String() string {
	return fmt.Sprintf("'%s' (pid %d)", strings.Join(h.command, " "), h.PID())
}

// lineTee buffers process output and forwards complete lines to an
// optional sink.
type lineTee struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	emitted int
	sink    func(string)
}

func (t *lineTee) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Write(p)
	t.emitLocked(false)
	return len(p), nil
}

func (t *lineTee) setSink(sink func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sink = sink
	t.emitLocked(false)
}

// flush forwards a trailing line that has no newline.
func (t *lineTee) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.emitLocked(true)
}

func (t *lineTee) emitLocked(final bool) {
	if t.sink == nil {
		return
	}

	pending := t.buf.Bytes()[t.emitted:]
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			break
		}
		t.sink(strings.TrimRight(string(pending[:i]), "\r"))
		t.emitted += i + 1
		pending = pending[i+1:]
	}

	if final && len(pending) > 0 {
		t.sink(string(pending))
		t.emitted += len(pending)
	}
}

func (t *lineTee) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return strings.TrimSpace(t.buf.String())
}
