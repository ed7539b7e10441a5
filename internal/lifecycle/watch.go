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
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// socketWakeInterval limits how often socket events may cut a poll short.
const socketWakeInterval = 50 * time.Millisecond

// watchSocket returns a channel that receives a value shortly after path is
// created. If the parent directory cannot be watched the channel never
// fires and readiness falls back to plain polling. The returned function
// releases the watcher.
func watchSocket(path string, logger *slog.Logger) (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)
	if path == "" {
		return wake, func() {}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug("socket watch unavailable, polling only", "error", err)
		return wake, func() {}
	}

	target := filepath.Clean(path)
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		fsw.Close()
		logger.Debug("socket watch unavailable, polling only", "path", target, "error", err)
		return wake, func() {}
	}

	limiter := rate.NewLimiter(rate.Every(socketWakeInterval), 1)
	stopCh := make(chan struct{})

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Create) {
					continue
				}
				if !limiter.Allow() {
					continue
				}
				select {
				case wake <- struct{}{}:
					socketWakeups.Inc()
				default:
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Debug("socket watch error", "error", err)
			}
		}
	}()

	return wake, func() {
		close(stopCh)
		fsw.Close()
	}
}
