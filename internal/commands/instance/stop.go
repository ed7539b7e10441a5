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

package instance

import (
	"errors"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/mysqlctl/internal/commands/shared"
	"github.com/tombee/mysqlctl/internal/lifecycle"
	"github.com/tombee/mysqlctl/internal/mysql"
)

const exitPollInterval = 100 * time.Millisecond

type stopFlags struct {
	wait    bool
	force   bool
	timeout time.Duration
}

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var flags stopFlags

	cmd := &cobra.Command{
		Use:   "stop [datadir]",
		Short: "Stop the instance serving a data directory",
		Long: `Ask the instance serving the data directory to shut down. By default
stop returns once the request is accepted; --wait blocks until the server
process has exited.

With --force, a server that does not accept the request but still owns the
PID file is sent SIGTERM.

Exit code 10 means no instance was running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.wait, "wait", false, "Wait until the server process has exited")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Send SIGTERM when the shutdown request fails")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Bound the whole stop (default from config)")

	return cmd
}

func runStop(cmd *cobra.Command, args []string, flags stopFlags) error {
	ctx := cmd.Context()
	env, err := shared.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	srv, err := env.Server()
	if err != nil {
		return err
	}
	dataDir, err := env.DataDir(args)
	if err != nil {
		return err
	}
	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return err
	}

	timeout := flags.timeout
	if timeout == 0 {
		timeout = env.Config.Shutdown.Timeout
	}
	ctx, cancel := shared.WithTimeout(ctx, timeout)
	defer cancel()

	// Read before the request; the server removes its PID file on exit.
	proc, err := lifecycle.NewPIDFile(mysql.PIDFilePath(dataDir)).Inspect()
	if err != nil {
		env.Logger.Debug("ignoring pid file", "error", err)
	}

	if err := srv.ShutdownInstanceIn(ctx, dataDir); err != nil {
		if !flags.force || proc == nil || !proc.Running {
			if !srv.IsInstanceRunningIn(ctx, dataDir) {
				return shared.NewNotRunningError("no instance running in " + dataDir)
			}
			return shared.Classify("failed to stop instance", err)
		}

		env.Logger.Warn("shutdown request failed, sending SIGTERM", "pid", proc.PID, "error", err)
		if err := lifecycle.SendSignal(proc.PID, syscall.SIGTERM); err != nil && !errors.Is(err, lifecycle.ErrProcessNotRunning) {
			return shared.Classify("failed to signal server process", err)
		}
	}

	if flags.wait {
		if err := srv.WaitUntilStopped(ctx, dataDir); err != nil {
			return shared.Classify("instance did not stop", err)
		}
		if proc != nil && proc.Running {
			if err := lifecycle.WaitForExit(ctx, proc.PID, exitPollInterval); err != nil {
				return shared.Classify("server process did not exit", err)
			}
		}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			DataDir string `json:"data_dir"`
			Waited  bool   `json:"waited"`
		}{shared.NewJSONResponse("stop", true), dataDir, flags.wait})
	}
	if !shared.GetQuiet() {
		msg := "Shutdown requested for " + dataDir
		if flags.wait {
			msg = "Stopped instance in " + dataDir
		}
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(msg))
	}
	return nil
}
