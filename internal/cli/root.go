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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/mysqlctl/internal/commands/history"
	"github.com/tombee/mysqlctl/internal/commands/instance"
	"github.com/tombee/mysqlctl/internal/commands/shared"
	"github.com/tombee/mysqlctl/internal/commands/version"
)

// Command groups
const (
	GroupInstance = "instance"
	GroupInfo     = "info"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mysqlctl",
		Short: "mysqlctl - manage MySQL instances from a binary distribution",
		Long: `mysqlctl starts, stops and inspects MySQL server instances of an
unpacked MySQL binary distribution. Every instance is addressed by its data
directory and reached over a Unix socket inside it.

Point mysqlctl at a distribution with --dist or MYSQLCTL_DIST, then run
'mysqlctl init <datadir>' followed by 'mysqlctl start <datadir>'.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config, dist := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/mysqlctl/config.yaml)")
	cmd.PersistentFlags().StringVar(dist, "dist", "", "Root of the MySQL binary distribution")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddGroup(
		&cobra.Group{ID: GroupInstance, Title: "Instance Commands:"},
		&cobra.Group{ID: GroupInfo, Title: "Information Commands:"},
	)

	for _, sub := range []*cobra.Command{
		instance.NewInitCommand(),
		instance.NewStartCommand(),
		instance.NewStopCommand(),
		instance.NewStatusCommand(),
		instance.NewRunCommand(),
	} {
		sub.GroupID = GroupInstance
		cmd.AddCommand(sub)
	}
	for _, sub := range []*cobra.Command{
		history.NewCommand(),
		version.NewVersionCommand(),
	} {
		sub.GroupID = GroupInfo
		cmd.AddCommand(sub)
	}

	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
