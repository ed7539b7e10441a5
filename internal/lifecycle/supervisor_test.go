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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeController becomes reachable after a number of pings and stops the
// process it controls by killing it.
type fakeController struct {
	aliveAfter int32
	pings      atomic.Int32
	shutdowns  atomic.Int32
	alive      func() bool
	onShutdown func() error
}

func (f *fakeController) Ping(ctx context.Context) bool {
	n := f.pings.Add(1)
	if ctx.Err() != nil {
		return false
	}
	if f.alive != nil {
		return f.alive()
	}
	return f.aliveAfter > 0 && n >= f.aliveAfter
}

func (f *fakeController) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	if f.onShutdown != nil {
		return f.onShutdown()
	}
	return nil
}

// recordingRecorder keeps events in memory.
type recordingRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingRecorder) Record(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Event
	}
	return names
}

func fastBackoff() Backoff {
	return Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}
}

func TestSupervisor_AwaitStartup(t *testing.T) {
	skipSpawnTests(t)

	t.Run("becomes running after first successful ping", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		ctrl := &fakeController{aliveAfter: 3}
		ready := testutil.ToFloat64(startupsTotal.WithLabelValues("ready"))

		sup := NewSupervisor(t.TempDir(), h, ctrl, WithPollBackoff(fastBackoff()))
		assert.Equal(t, StateStarting, sup.State())
		assert.NotEmpty(t, sup.ID())

		require.NoError(t, sup.AwaitStartup(context.Background()))
		assert.Equal(t, StateRunning, sup.State())
		assert.True(t, sup.IsRunning())
		assert.Equal(t, int32(3), ctrl.pings.Load())
		assert.Equal(t, ready+1, testutil.ToFloat64(startupsTotal.WithLabelValues("ready")))
	})

	t.Run("fails when process exits before becoming reachable", func(t *testing.T) {
		h := spawnShell(t, "sleep 0.1; exit 3")
		ctrl := &fakeController{}
		dir := t.TempDir()

		sup := NewSupervisor(dir, h, ctrl,
			WithPollBackoff(fastBackoff()),
			WithErrorLog(filepath.Join(dir, "error.log")))

		err := sup.AwaitStartup(context.Background())
		require.Error(t, err)

		var failed *StartupFailedError
		require.True(t, errors.As(err, &failed), "error = %T, want *StartupFailedError", err)
		assert.Equal(t, 3, failed.ExitCode)
		assert.Equal(t, dir, failed.DataDir)
		assert.Contains(t, err.Error(), "failed to start")
		assert.Contains(t, err.Error(), "error.log")
		assert.Equal(t, StateTerminated, sup.State())
	})

	t.Run("checks for exit before pinging", func(t *testing.T) {
		h := spawnShell(t, "exit 1")
		require.NoError(t, h.Wait(context.Background()))

		// Reachable, but the owned process is gone.
		ctrl := &fakeController{aliveAfter: 1}
		sup := NewSupervisor(t.TempDir(), h, ctrl)
		<-sup.Done()

		var failed *StartupFailedError
		require.ErrorAs(t, sup.AwaitStartup(context.Background()), &failed)
		assert.Equal(t, int32(0), ctrl.pings.Load())
	})

	t.Run("returns context error on cancellation", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		sup := NewSupervisor(t.TempDir(), h, &fakeController{}, WithPollBackoff(fastBackoff()))

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()

		err := sup.AwaitStartup(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StateStarting, sup.State())
	})

	t.Run("socket creation wakes the poll early", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		dir := t.TempDir()
		sock := filepath.Join(dir, "mysql.sock")

		ctrl := &fakeController{alive: func() bool {
			_, err := os.Stat(sock)
			return err == nil
		}}
		sup := NewSupervisor(dir, h, ctrl,
			WithPollBackoff(Backoff{Initial: 20 * time.Second, Max: 20 * time.Second, Multiplier: 1}),
			WithSocketWatch(sock))

		go func() {
			time.Sleep(200 * time.Millisecond)
			_ = os.WriteFile(sock, nil, 0600)
		}()

		start := time.Now()
		require.NoError(t, sup.AwaitStartup(context.Background()))
		assert.Less(t, time.Since(start), 10*time.Second)
	})
}

// blockingRecorder holds back one event until release is closed.
type blockingRecorder struct {
	block   string
	release chan struct{}
}

func (r *blockingRecorder) Record(_ context.Context, e Event) error {
	if e.Event == r.block {
		<-r.release
	}
	return nil
}

func TestSupervisor_Shutdown(t *testing.T) {
	skipSpawnTests(t)

	t.Run("stops process and records events", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		ctrl := &fakeController{aliveAfter: 1, onShutdown: h.Kill}
		rec := &recordingRecorder{}

		sup := NewSupervisor(t.TempDir(), h, ctrl, WithRecorder(rec))
		require.NoError(t, sup.AwaitStartup(context.Background()))
		require.NoError(t, sup.Shutdown(context.Background()))

		assert.Equal(t, StateTerminated, sup.State())
		assert.False(t, sup.IsRunning())

		// Termination is recorded asynchronously by the monitor.
		require.Eventually(t, func() bool {
			return len(rec.names()) == 3
		}, 5*time.Second, 10*time.Millisecond)
		assert.ElementsMatch(t, []string{EventStop, EventStopSuccess, EventTerminated}, rec.names())
	})

	t.Run("is a no-op after termination", func(t *testing.T) {
		h := spawnShell(t, "exit 0")
		ctrl := &fakeController{}
		sup := NewSupervisor(t.TempDir(), h, ctrl)
		<-sup.Done()

		require.NoError(t, sup.Shutdown(context.Background()))
		assert.Equal(t, int32(0), ctrl.shutdowns.Load())
	})

	t.Run("concurrent callers share one request", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		ctrl := &fakeController{aliveAfter: 1, onShutdown: func() error {
			time.Sleep(50 * time.Millisecond)
			return h.Kill()
		}}
		sup := NewSupervisor(t.TempDir(), h, ctrl)

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, sup.Shutdown(context.Background()))
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), ctrl.shutdowns.Load())
		assert.Equal(t, StateTerminated, sup.State())
	})

	t.Run("propagates failed shutdown command", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		cmdErr := &ProcessFailureError{Command: []string{"mysqladmin"}, ExitCode: 1}
		ctrl := &fakeController{onShutdown: func() error { return cmdErr }}
		sup := NewSupervisor(t.TempDir(), h, ctrl)

		err := sup.Shutdown(context.Background())
		assert.ErrorIs(t, err, cmdErr)
		assert.True(t, sup.IsRunning())
	})

	t.Run("failed request after exit waits for termination", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		release := make(chan struct{})
		rec := &blockingRecorder{block: EventTerminated, release: release}
		ctrl := &fakeController{onShutdown: func() error {
			_ = h.Kill()
			<-h.Done()
			time.AfterFunc(100*time.Millisecond, func() { close(release) })
			return &ProcessFailureError{Command: []string{"mysqladmin"}, ExitCode: 1}
		}}
		sup := NewSupervisor(t.TempDir(), h, ctrl, WithRecorder(rec))

		require.NoError(t, sup.Shutdown(context.Background()))
		assert.False(t, sup.IsRunning())
		assert.Equal(t, StateTerminated, sup.State())
	})

	t.Run("times out waiting for exit", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		sup := NewSupervisor(t.TempDir(), h, &fakeController{})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := sup.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, sup.IsRunning())
	})
}

func TestSupervisor_Termination(t *testing.T) {
	skipSpawnTests(t)

	t.Run("external kill is observed", func(t *testing.T) {
		h := spawnShell(t, "sleep 30")
		sup := NewSupervisor(t.TempDir(), h, &fakeController{aliveAfter: 1})
		require.NoError(t, sup.AwaitStartup(context.Background()))

		require.NoError(t, sup.Kill())
		select {
		case <-sup.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("termination was not observed")
		}
		assert.Equal(t, StateTerminated, sup.State())
	})

	t.Run("auto shutdown hook is registered until exit", func(t *testing.T) {
		before := pendingShutdownHooks()

		h := spawnShell(t, "sleep 30")
		ctrl := &fakeController{aliveAfter: 1, onShutdown: h.Kill}
		sup := NewSupervisor(t.TempDir(), h, ctrl, WithAutoShutdown(5*time.Second))
		assert.Equal(t, before+1, pendingShutdownHooks())

		require.NoError(t, RunShutdownHooks(context.Background()))
		assert.Equal(t, StateTerminated, sup.State())
		assert.Equal(t, int32(1), ctrl.shutdowns.Load())
		assert.Equal(t, before, pendingShutdownHooks())
	})

	t.Run("hook is removed when process exits on its own", func(t *testing.T) {
		before := pendingShutdownHooks()

		h := spawnShell(t, "exit 0")
		sup := NewSupervisor(t.TempDir(), h, &fakeController{}, WithAutoShutdown(0))
		<-sup.Done()

		require.Eventually(t, func() bool {
			return pendingShutdownHooks() == before
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateTerminated, "terminated"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
