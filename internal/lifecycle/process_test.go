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
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestIsProcessRunning(t *testing.T) {
	t.Run("returns true for current process", func(t *testing.T) {
		if !IsProcessRunning(os.Getpid()) {
			t.Error("IsProcessRunning(os.Getpid()) = false, want true")
		}
	})

	t.Run("returns false for non-existent PID", func(t *testing.T) {
		// Use a very high PID that's unlikely to exist
		if IsProcessRunning(999999) {
			t.Error("IsProcessRunning(999999) = true, want false")
		}
	})
}

func TestSendSignal(t *testing.T) {
	t.Run("sends signal to running process", func(t *testing.T) {
		cmd := exec.Command("sleep", "60")
		if err := cmd.Start(); err != nil {
			t.Fatalf("Failed to start sleep process: %v", err)
		}
		defer func() {
			cmd.Process.Kill()
			cmd.Wait()
		}()

		// Send harmless signal (0 = existence check)
		if err := SendSignal(cmd.Process.Pid, syscall.Signal(0)); err != nil {
			t.Errorf("SendSignal() error = %v", err)
		}
	})

	t.Run("returns error for non-existent process", func(t *testing.T) {
		if err := SendSignal(999999, syscall.SIGTERM); err == nil {
			t.Error("SendSignal() to non-existent process succeeded, want error")
		}
	})
}

func TestSignalGroup(t *testing.T) {
	t.Run("returns ErrProcessNotRunning for missing group", func(t *testing.T) {
		err := SignalGroup(999999, syscall.SIGTERM)
		if !errors.Is(err, ErrProcessNotRunning) {
			t.Errorf("SignalGroup() error = %v, want ErrProcessNotRunning", err)
		}
	})
}

func TestWaitForExit(t *testing.T) {
	skipSpawnTests(t)

	t.Run("returns nil when process exits", func(t *testing.T) {
		h := spawnShell(t, "sleep 0.1")
		go h.Wait(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := WaitForExit(ctx, h.PID(), 20*time.Millisecond); err != nil {
			t.Errorf("WaitForExit() error = %v", err)
		}
	})

	t.Run("returns context error while process runs", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := WaitForExit(ctx, h.PID(), 20*time.Millisecond)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("WaitForExit() error = %v, want DeadlineExceeded", err)
		}
	})
}

func TestGetProcessInfo(t *testing.T) {
	skipSpawnTests(t)

	t.Run("returns info for running process", func(t *testing.T) {
		h := spawnShell(t, "sleep 60")

		info := GetProcessInfo(h.PID())
		if info.PID != h.PID() {
			t.Errorf("info.PID = %d, want %d", info.PID, h.PID())
		}
		if !info.Running {
			t.Error("info.Running = false, want true")
		}
		if info.Command == "" {
			t.Error("info.Command is empty")
		}
	})

	t.Run("returns not running for non-existent process", func(t *testing.T) {
		if info := GetProcessInfo(999999); info.Running {
			t.Error("info.Running = true, want false")
		}
	})
}

func TestIsServerProcess(t *testing.T) {
	skipSpawnTests(t)

	t.Run("returns false for unrelated process", func(t *testing.T) {
		h := spawnShell(t, "sleep 60")
		if IsServerProcess(h.PID()) {
			t.Error("IsServerProcess(sleep) = true, want false")
		}
	})

	t.Run("returns true for mysqld command line", func(t *testing.T) {
		script := filepath.Join(t.TempDir(), "mysqld")
		if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 60\n"), 0755); err != nil {
			t.Fatalf("Failed to write script: %v", err)
		}

		h, err := NewSpawner().Spawn(script)
		skipOnSpawnError(t, err)
		if err != nil {
			t.Fatalf("Spawn() error = %v", err)
		}
		t.Cleanup(func() { _ = h.Kill() })

		if !IsServerProcess(h.PID()) {
			t.Error("IsServerProcess(mysqld) = false, want true")
		}
	})

	t.Run("returns false for non-existent process", func(t *testing.T) {
		if IsServerProcess(999999) {
			t.Error("IsServerProcess(999999) = true, want false")
		}
	})
}
