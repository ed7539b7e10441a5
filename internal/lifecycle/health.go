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
	"time"
)

// ErrStillReachable is returned when a server keeps answering pings after it
// was asked to shut down.
var ErrStillReachable = errors.New("server still reachable")

// Controller talks to a server over its administrative channel.
type Controller interface {
	// Ping reports whether the server accepts administrative connections.
	// Any failure, including a cancelled context, reports false.
	Ping(ctx context.Context) bool

	// Shutdown asks the server to stop. It returns once the request has been
	// accepted, not when the server has exited.
	Shutdown(ctx context.Context) error
}

// Backoff describes an exponential polling schedule.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff polls after 100ms, doubling up to 500ms.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    100 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// WithBackoff returns a copy with different bounds. Zero values keep the
// current setting.
func (b Backoff) WithBackoff(initial, max time.Duration, multiplier float64) Backoff {
	if initial > 0 {
		b.Initial = initial
	}
	if max > 0 {
		b.Max = max
	}
	if multiplier >= 1 {
		b.Multiplier = multiplier
	}
	return b
}

// Next returns the interval that follows current.
func (b Backoff) Next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * b.Multiplier)
	if next > b.Max {
		next = b.Max
	}
	if next <= 0 {
		next = b.Initial
	}
	return next
}

// WaitUntilUnreachable polls ctrl until Ping fails or ctx is done.
func WaitUntilUnreachable(ctx context.Context, ctrl Controller, b Backoff) error {
	interval := b.Initial
	attempts := 0

	for {
		attempts++
		if !ctrl.Ping(ctx) {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w after %d attempts: %w", ErrStillReachable, attempts, err)
			}
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w after %d attempts: %w", ErrStillReachable, attempts, ctx.Err())
		case <-timer.C:
		}

		interval = b.Next(interval)
	}
}

// ShutdownUnowned stops a server that this process did not start and has no
// Handle for. Since there is no exit to wait on, it polls until the server
// stops answering pings.
func ShutdownUnowned(ctx context.Context, ctrl Controller, b Backoff) error {
	if err := ctrl.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to request shutdown: %w", err)
	}
	return WaitUntilUnreachable(ctx, ctrl, b)
}
