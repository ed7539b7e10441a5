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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultHookTimeout bounds RunShutdownHooks when it is triggered by a signal.
const DefaultHookTimeout = 30 * time.Second

// ShutdownHook stops something that must not outlive the current process.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

type hookRegistry struct {
	mu    sync.Mutex
	next  int
	hooks map[int]namedHook
}

var shutdownHooks = &hookRegistry{hooks: make(map[int]namedHook)}

// RegisterShutdownHook registers fn to run when the process is shutting
// down. The returned function removes the hook again and is safe to call
// more than once.
func RegisterShutdownHook(name string, fn ShutdownHook) (unregister func()) {
	r := shutdownHooks
	r.mu.Lock()
	id := r.next
	r.next++
	r.hooks[id] = namedHook{name: name, fn: fn}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.hooks, id)
		r.mu.Unlock()
	}
}

// RunShutdownHooks runs every registered hook concurrently and removes
// them, so each hook runs at most once. Errors from all hooks are joined.
func RunShutdownHooks(ctx context.Context) error {
	r := shutdownHooks
	r.mu.Lock()
	hooks := make([]namedHook, 0, len(r.hooks))
	for id, h := range r.hooks {
		hooks = append(hooks, h)
		delete(r.hooks, id)
	}
	r.mu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, h := range hooks {
		g.Go(func() error {
			if err := h.fn(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown hook %s: %w", h.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// pendingShutdownHooks returns the number of registered hooks.
func pendingShutdownHooks() int {
	shutdownHooks.mu.Lock()
	defer shutdownHooks.mu.Unlock()
	return len(shutdownHooks.hooks)
}

// NotifyShutdown returns a context that is cancelled after one of sigs
// arrives and all shutdown hooks have run. With no signals given it listens
// for SIGINT and SIGTERM.
func NotifyShutdown(parent context.Context, logger *slog.Logger, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, running shutdown hooks", "signal", sig.String())
			hookCtx, hookCancel := context.WithTimeout(context.Background(), DefaultHookTimeout)
			if err := RunShutdownHooks(hookCtx); err != nil {
				logger.Warn("shutdown hooks failed", "error", err)
			}
			hookCancel()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
