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

package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/mysqlctl/internal/commands/shared"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	Distribution  string `json:"distribution,omitempty"`
	ServerVersion string `json:"server_version,omitempty"`
	ServerError   string `json:"server_error,omitempty"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version, commit hash, and build date for mysqlctl, and the
server version of the configured MySQL distribution.`,
		Args: cobra.NoArgs,
		RunE: runVersion,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	v, c, b := shared.GetVersion()
	info := VersionInfo{
		Version:   v,
		Commit:    c,
		BuildDate: b,
	}

	env, err := shared.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close(ctx)

	// The tool version is useful even without a distribution.
	if env.Config.Distribution != "" {
		srv, err := env.Server()
		if err == nil {
			info.Distribution = srv.Distribution().Path
			info.ServerVersion, err = srv.Version(ctx)
		}
		if err != nil {
			info.ServerError = err.Error()
		}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), info)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mysqlctl version %s\n", info.Version)
	fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
	fmt.Fprintf(out, "  build date: %s\n", info.BuildDate)
	switch {
	case info.ServerVersion != "":
		fmt.Fprintf(out, "  server:     %s (%s)\n", info.ServerVersion, info.Distribution)
	case info.ServerError != "":
		fmt.Fprintln(out, shared.RenderWarn("server version unavailable: "+info.ServerError))
	}
	return nil
}
