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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/mysqlctl/internal/commands/shared"
)

// CommandMetadata describes a command for JSON help output.
type CommandMetadata struct {
	Name    string         `json:"name"`
	Short   string         `json:"short"`
	Long    string         `json:"long,omitempty"`
	Usage   string         `json:"usage"`
	Group   string         `json:"group,omitempty"`
	Flags   []FlagMetadata `json:"flags,omitempty"`
	Example string         `json:"example,omitempty"`
}

// FlagMetadata describes a flag.
type FlagMetadata struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

// HelpResponse is the JSON response for help command
type HelpResponse struct {
	shared.JSONResponse
	Commands    []CommandMetadata `json:"commands,omitempty"`
	Target      *CommandMetadata  `json:"target,omitempty"`
	GlobalFlags []FlagMetadata    `json:"global_flags"`
	ExitCodes   map[int]string    `json:"exit_codes"`
}

var exitCodeDescriptions = map[int]string{
	shared.ExitSuccess:        "success",
	shared.ExitFailure:        "failure",
	shared.ExitUsage:          "invalid usage or configuration",
	shared.ExitAlreadyRunning: "an instance is already running in the data directory",
	shared.ExitStartupFailed:  "the server exited during startup",
	shared.ExitNotRunning:     "no instance is running",
}

// NewHelpCommand creates a help command that also emits JSON with --json.
func NewHelpCommand(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "help [command]",
		Short: "Help about any command",
		Long: `Help provides detailed information about commands and their usage.
With --json the command tree, flags and exit codes are printed as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := root
			if len(args) > 0 {
				found, _, err := root.Find(args)
				if err != nil || found == root {
					return shared.NewUsageError(fmt.Sprintf("unknown command %q", args[0]), nil)
				}
				target = found
			}

			if !shared.GetJSON() {
				return target.Help()
			}

			resp := HelpResponse{
				JSONResponse: shared.NewJSONResponse("help", true),
				GlobalFlags:  flagMetadata(root.PersistentFlags()),
				ExitCodes:    exitCodeDescriptions,
			}
			if target == root {
				for _, c := range root.Commands() {
					if c.IsAvailableCommand() {
						resp.Commands = append(resp.Commands, commandMetadata(c))
					}
				}
			} else {
				meta := commandMetadata(target)
				resp.Target = &meta
			}
			return shared.EmitJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func commandMetadata(cmd *cobra.Command) CommandMetadata {
	return CommandMetadata{
		Name:    cmd.Name(),
		Short:   cmd.Short,
		Long:    cmd.Long,
		Usage:   cmd.UseLine(),
		Group:   cmd.GroupID,
		Flags:   flagMetadata(cmd.LocalNonPersistentFlags()),
		Example: cmd.Example,
	}
}

func flagMetadata(fs *pflag.FlagSet) []FlagMetadata {
	var flags []FlagMetadata
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		flags = append(flags, FlagMetadata{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return flags
}
