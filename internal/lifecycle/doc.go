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

/*
Package lifecycle supervises server processes spawned by mysqlctl.

This package provides process handles, readiness polling, process
supervision, shutdown hooks, and lifecycle event recording.

# Process Handles

A Handle wraps one child process. Output is captured in memory and any
number of goroutines may wait on it:

	spawner := lifecycle.NewSpawner()
	h, err := spawner.Run(ctx, "/opt/mysql/bin/mysqld", "--version")
	if err != nil {
	    // *ProcessLaunchError or *ProcessFailureError
	}
	fmt.Println(h.Stdout())

# Supervision

A Supervisor takes ownership of a long-running server process and a
Controller that can ping and stop it:

	sup := lifecycle.NewSupervisor(dataDir, h, ctrl,
	    lifecycle.WithSocketWatch(socketPath),
	    lifecycle.WithAutoShutdown(30*time.Second))
	if err := sup.AwaitStartup(ctx); err != nil {
	    // *StartupFailedError if the process exited first
	}
	defer sup.Shutdown(ctx)

The state moves from StateStarting to StateRunning on the first successful
ping and to StateTerminated when the process exits, from either state.

# Shutdown Hooks

Instances started with WithAutoShutdown register a hook that stops them
when the current process exits. NotifyShutdown runs the hooks on SIGINT or
SIGTERM:

	ctx, cancel := lifecycle.NotifyShutdown(ctx, logger)
	defer cancel()

# PID Files

The server writes its own PID file. PIDFile only reads it and checks that
the process it names is still a server:

	info, err := lifecycle.NewPIDFile(pidPath).Inspect()

# Lifecycle Logging

Start, stop and exit events are written to a Recorder for audit purposes:

	rec := lifecycle.NewEventLog("/path/to/lifecycle.log")
	rec.Record(ctx, lifecycle.Event{Event: lifecycle.EventStart, DataDir: dir})
*/
package lifecycle
