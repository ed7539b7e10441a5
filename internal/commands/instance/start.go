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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/mysqlctl/internal/commands/shared"
	"github.com/tombee/mysqlctl/internal/lifecycle"
	"github.com/tombee/mysqlctl/internal/mysql"
)

// InstanceInfo describes a started instance.
type InstanceInfo struct {
	InstanceID string `json:"instance_id"`
	DataDir    string `json:"data_dir"`
	PID        int    `json:"pid"`
	State      string `json:"state"`
	Socket     string `json:"socket"`
	Port       int    `json:"port,omitempty"`
}

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var flags shared.InstanceFlags

	cmd := &cobra.Command{
		Use:   "start [datadir]",
		Short: "Start an instance and leave it running",
		Long: `Start an instance serving the data directory and wait until it answers
a ping. The instance keeps running after mysqlctl exits; stop it with
'mysqlctl stop'.

Exit codes: 3 if an instance is already running, 4 if the server exited
during startup.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, args, &flags)
		},
	}
	flags.Register(cmd.Flags())

	return cmd
}

func runStart(cmd *cobra.Command, args []string, flags *shared.InstanceFlags) error {
	ctx := cmd.Context()
	env, err := shared.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	// The instance outlives this command, so it must not write to our pipes.
	srv, err := env.Server(mysql.WithDetachedOutput())
	if err != nil {
		return err
	}
	dataDir, err := env.DataDir(args)
	if err != nil {
		return err
	}

	spec := flags.Spec(env.Config)
	startCtx, cancel := shared.WithTimeout(ctx, flags.StartupTimeout(env.Config))
	defer cancel()

	sup, err := srv.Start(startCtx, dataDir, spec)
	if err != nil {
		return shared.Classify("failed to start instance", err)
	}

	info := instanceInfo(sup, spec.Port)
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Instance InstanceInfo `json:"instance"`
		}{shared.NewJSONResponse("start", true), info})
	}
	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Started instance in %s (pid %d)", info.DataDir, info.PID)))
		fmt.Fprintln(cmd.OutOrStdout(), shared.Muted.Render("  socket: "+info.Socket))
	}
	return nil
}

func instanceInfo(sup *lifecycle.Supervisor, port int) InstanceInfo {
	return InstanceInfo{
		InstanceID: sup.ID(),
		DataDir:    sup.DataDir(),
		PID:        sup.PID(),
		State:      sup.State().String(),
		Socket:     mysql.SocketPath(sup.DataDir()),
		Port:       port,
	}
}
