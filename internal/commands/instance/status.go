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
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/mysqlctl/internal/commands/shared"
	"github.com/tombee/mysqlctl/internal/lifecycle"
	"github.com/tombee/mysqlctl/internal/mysql"
)

// maxConcurrentProbes bounds the pings status runs at once.
const maxConcurrentProbes = 8

// Status is the observed state of one data directory.
type Status struct {
	DataDir   string                 `json:"data_dir"`
	Reachable bool                   `json:"reachable"`
	Process   *lifecycle.ProcessInfo `json:"process,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [datadir...]",
		Short: "Show whether instances are running",
		Long: `Check each data directory for a reachable instance and report the
process named by its PID file. Directories are probed in parallel.

Exit code 10 means at least one instance is not running.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	if len(args) == 0 {
		dir, err := env.DataDir(nil)
		if err != nil {
			return err
		}
		args = []string{dir}
	}

	statuses, err := probeAll(ctx, srv, args)
	if err != nil {
		return err
	}

	allRunning := true
	for _, st := range statuses {
		allRunning = allRunning && st.Reachable
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Instances []Status `json:"instances"`
		}{shared.NewJSONResponse("status", allRunning), statuses}); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), renderStatuses(statuses, shared.TerminalWidth(120)))
	}

	if !allRunning {
		return shared.NewNotRunningError("")
	}
	return nil
}

// probeAll checks every directory concurrently. Results keep the order of
// dirs.
func probeAll(ctx context.Context, srv *mysql.Server, dirs []string) ([]Status, error) {
	statuses := make([]Status, len(dirs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, dir := range dirs {
		g.Go(func() error {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", dir, err)
			}
			st := Status{DataDir: abs, Reachable: srv.IsInstanceRunningIn(ctx, abs)}

			proc, err := lifecycle.NewPIDFile(mysql.PIDFilePath(abs)).Inspect()
			if err != nil {
				st.Error = err.Error()
			}
			st.Process = proc

			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func renderStatuses(statuses []Status, width int) string {
	dirWidth := len("DATA DIR")
	for _, st := range statuses {
		dirWidth = max(dirWidth, len(st.DataDir))
	}
	// Leave room for the state and pid columns.
	dirWidth = min(dirWidth, max(width-24, 20))

	dirCol := lipgloss.NewStyle().Width(dirWidth + 2)
	stateCol := lipgloss.NewStyle().Width(12)

	var b strings.Builder
	b.WriteString(dirCol.Render(shared.Header.Render("DATA DIR")))
	b.WriteString(stateCol.Render(shared.Header.Render("STATE")))
	b.WriteString(shared.Header.Render("PID"))
	b.WriteString("\n")

	for _, st := range statuses {
		state := "stopped"
		if st.Reachable {
			state = "running"
		}
		pid := "-"
		if st.Process != nil && st.Process.Running {
			pid = strconv.Itoa(st.Process.PID)
		} else if st.Process != nil {
			pid = shared.Muted.Render(strconv.Itoa(st.Process.PID) + " (stale)")
		}

		b.WriteString(dirCol.Render(truncateLeft(st.DataDir, dirWidth)))
		b.WriteString(stateCol.Render(shared.RenderState(st.Reachable, state)))
		b.WriteString(pid)
		b.WriteString("\n")
		if st.Error != "" {
			b.WriteString(shared.RenderWarn(st.Error))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// truncateLeft keeps the tail of s, which is the informative part of a path.
func truncateLeft(s string, width int) string {
	if len(s) <= width || width < 4 {
		return s
	}
	return "..." + s[len(s)-width+3:]
}
