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

// Package history implements the history command.
package history

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tombee/mysqlctl/internal/commands/shared"
	historystore "github.com/tombee/mysqlctl/internal/history"
	"github.com/tombee/mysqlctl/internal/lifecycle"
)

type historyFlags struct {
	dataDir string
	event   string
	since   time.Duration
	limit   int
	prune   time.Duration
}

// NewCommand creates the history command.
func NewCommand() *cobra.Command {
	var flags historyFlags

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded instance lifecycle events",
		Long: `List lifecycle events (start, stop, termination, initialization) that
mysqlctl recorded, newest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.dataDir, "datadir", "", "Only events for this data directory")
	cmd.Flags().StringVar(&flags.event, "event", "", "Only events of this kind (e.g. start_failure)")
	cmd.Flags().DurationVar(&flags.since, "since", 0, "Only events newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&flags.limit, "limit", historystore.DefaultLimit, "Maximum number of events")
	cmd.Flags().DurationVar(&flags.prune, "prune", 0, "Delete events older than this instead of listing")

	return cmd
}

func runHistory(cmd *cobra.Command, flags historyFlags) error {
	ctx := cmd.Context()
	env, err := shared.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	if env.History == nil {
		return shared.NewUsageError("event history is disabled or unavailable", nil)
	}

	if flags.prune > 0 {
		n, err := env.History.Prune(ctx, time.Now().Add(-flags.prune))
		if err != nil {
			return err
		}
		if shared.GetJSON() {
			return shared.EmitJSON(cmd.OutOrStdout(), struct {
				shared.JSONResponse
				Deleted int64 `json:"deleted"`
			}{shared.NewJSONResponse("history", true), n})
		}
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Deleted %d events", n)))
		return nil
	}

	filter := historystore.Filter{Event: flags.event, Limit: flags.limit}
	if flags.dataDir != "" {
		if filter.DataDir, err = filepath.Abs(flags.dataDir); err != nil {
			return err
		}
	}
	if flags.since > 0 {
		filter.Since = time.Now().Add(-flags.since)
	}

	events, err := env.History.List(ctx, filter)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Events []lifecycle.Event `json:"events"`
		}{shared.NewJSONResponse("history", true), events})
	}

	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), shared.Muted.Render("No events recorded"))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), renderEvents(events))
	return nil
}

func renderEvents(events []lifecycle.Event) string {
	timeCol := lipgloss.NewStyle().Width(21)
	eventCol := lipgloss.NewStyle().Width(20)

	var b strings.Builder
	b.WriteString(timeCol.Render(shared.Header.Render("TIME")))
	b.WriteString(eventCol.Render(shared.Header.Render("EVENT")))
	b.WriteString(shared.Header.Render("DATA DIR"))
	b.WriteString("\n")

	for _, e := range events {
		name := e.Event
		switch {
		case strings.HasSuffix(e.Event, "failure"):
			name = shared.StatusError.Render(name)
		case e.Event == lifecycle.EventTerminated && e.ExitCode != 0:
			name = shared.StatusWarn.Render(name)
		}

		b.WriteString(timeCol.Render(e.Timestamp.Local().Format(time.DateTime)))
		b.WriteString(eventCol.Render(name))
		b.WriteString(e.DataDir)
		if detail := eventDetail(e); detail != "" {
			b.WriteString(" " + shared.Muted.Render(detail))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func eventDetail(e lifecycle.Event) string {
	var parts []string
	if e.PID != 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}
	if e.ExitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	if e.Error != "" {
		parts = append(parts, e.Error)
	}
	return strings.Join(parts, " ")
}
