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
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipOnSpawnError checks if an error is a spawn permission error and skips if so.
// Some environments (sandboxed test runners, containers) block fork/exec.
func skipOnSpawnError(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
	}
}

func skipSpawnTests(t *testing.T) {
	t.Helper()
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}
}

func spawnShell(t *testing.T, script string) *Handle {
	t.Helper()
	h, err := NewSpawner().Spawn("sh", "-c", script)
	skipOnSpawnError(t, err)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Kill() })
	return h
}

func TestSpawner_Run(t *testing.T) {
	skipSpawnTests(t)
	ctx := context.Background()

	t.Run("captures stdout of successful process", func(t *testing.T) {
		h, err := NewSpawner().Run(ctx, "sh", "-c", "echo '  some output  '")
		skipOnSpawnError(t, err)
		require.NoError(t, err)

		assert.Equal(t, "some output", h.Stdout())
		assert.Equal(t, 0, h.ExitCode())
		assert.Empty(t, h.Stderr())
	})

	t.Run("reports exit code and stderr on failure", func(t *testing.T) {
		h, err := NewSpawner().Run(ctx, "sh", "-c",
			"echo some output; echo 'instructed to fail with code 99' >&2; exit 99")
		skipOnSpawnError(t, err)
		require.Error(t, err)
		require.NotNil(t, h)

		var failure *ProcessFailureError
		require.True(t, errors.As(err, &failure), "error = %T, want *ProcessFailureError", err)
		assert.Equal(t, 99, failure.ExitCode)
		assert.Equal(t, "instructed to fail with code 99", failure.Stderr)
		assert.Contains(t, err.Error(), "exit-code: 99")
		assert.Contains(t, err.Error(), "error: instructed to fail with code 99")
		assert.Contains(t, err.Error(), "failed to run 'sh -c")
		assert.Equal(t, "some output", h.Stdout())
	})

	t.Run("reports launch failure for missing binary", func(t *testing.T) {
		h, err := NewSpawner().Run(ctx, "/nonexistent/unknown-script")
		require.Error(t, err)
		assert.Nil(t, h)

		var launch *ProcessLaunchError
		require.True(t, errors.As(err, &launch), "error = %T, want *ProcessLaunchError", err)
		assert.Equal(t, []string{"/nonexistent/unknown-script"}, launch.Command)
		assert.Contains(t, err.Error(), "unable to start /nonexistent/unknown-script")
	})

	t.Run("kills process when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		h, err := NewSpawner().Run(ctx, "sleep", "30")
		skipOnSpawnError(t, err)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		select {
		case <-h.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("process was not killed after cancellation")
		}
	})
}

func TestSpawner_OutputFile(t *testing.T) {
	skipSpawnTests(t)
	ctx := context.Background()

	t.Run("writes output to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.log")
		require.NoError(t, os.WriteFile(path, []byte("earlier\n"), 0600))

		h, err := NewSpawner().WithOutputFile(path).Run(ctx, "sh", "-c", "echo to stdout; echo to stderr >&2")
		skipOnSpawnError(t, err)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "earlier\nto stdout\nto stderr\n", string(data))
		assert.Empty(t, h.Stdout())
		assert.Empty(t, h.Stderr())
	})

	t.Run("child keeps writing without a reader", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.log")
		h, err := NewSpawner().WithOutputFile(path).Spawn("sh", "-c", "sleep 0.2; echo late")
		skipOnSpawnError(t, err)
		require.NoError(t, err)

		require.NoError(t, h.WaitSuccess(ctx))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "late\n", string(data))
	})

	t.Run("does not change the original spawner", func(t *testing.T) {
		s := NewSpawner()
		_ = s.WithOutputFile("/tmp/out.log")
		assert.Empty(t, s.OutputFile)
	})

	t.Run("unopenable file is a launch error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "out.log")
		_, err := NewSpawner().WithOutputFile(path).Spawn("sh", "-c", "true")

		var launch *ProcessLaunchError
		require.ErrorAs(t, err, &launch)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestHandle_Wait(t *testing.T) {
	skipSpawnTests(t)

	t.Run("exit code is -1 while running", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		assert.Equal(t, -1, h.ExitCode())
		assert.False(t, h.Exited())
		assert.Greater(t, h.PID(), 0)
	})

	t.Run("wait is idempotent across goroutines", func(t *testing.T) {
		h := spawnShell(t, "sleep 0.2; exit 7")

		var wg sync.WaitGroup
		errs := make([]error, 5)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = h.Wait(context.Background())
			}()
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.Equal(t, 7, h.ExitCode())
		assert.NoError(t, h.Wait(context.Background()))
	})

	t.Run("wait returns context error and leaves process alone", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := h.Wait(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, h.Exited())
		assert.True(t, IsProcessRunning(h.PID()))
	})

	t.Run("wait success on zero exit", func(t *testing.T) {
		h := spawnShell(t, "exit 0")
		assert.NoError(t, h.WaitSuccess(context.Background()))
	})

	t.Run("kill terminates process group", func(t *testing.T) {
		h := spawnShell(t, "sleep 30 & sleep 30; wait")
		require.NoError(t, h.Kill())
		require.NoError(t, h.Wait(context.Background()))
		assert.Equal(t, -1, h.ExitCode())
		assert.NoError(t, h.Kill())
	})
}

func TestHandle_StreamStdout(t *testing.T) {
	skipSpawnTests(t)

	t.Run("replays earlier lines then streams", func(t *testing.T) {
		h := spawnShell(t, "echo first; echo second; sleep 0.3; printf third")

		require.Eventually(t, func() bool {
			return strings.Contains(h.Stdout(), "second")
		}, 5*time.Second, 10*time.Millisecond)

		var (
			mu    sync.Mutex
			lines []string
		)
		h.StreamStdout(func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		})

		require.NoError(t, h.Wait(context.Background()))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"first", "second", "third"}, lines)
	})

	t.Run("delivers output of already exited process", func(t *testing.T) {
		h := spawnShell(t, "echo a; echo b")
		require.NoError(t, h.Wait(context.Background()))

		var lines []string
		h.StreamStdout(func(line string) { lines = append(lines, line) })
		assert.Equal(t, []string{"a", "b"}, lines)
	})
}

func TestLineTee(t *testing.T) {
	tee := &lineTee{}
	var lines []string
	tee.setSink(func(line string) { lines = append(lines, line) })

	_, _ = tee.Write([]byte("par"))
	_, _ = tee.Write([]byte("tial\r\nnext\n"))
	_, _ = tee.Write([]byte("tail"))
	assert.Equal(t, []string{"partial", "next"}, lines)

	tee.flush()
	tee.flush()
	assert.Equal(t, []string{"partial", "next", "tail"}, lines)
	assert.Equal(t, "partial\r\nnext\ntail", tee.String())
}
