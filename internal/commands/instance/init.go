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

// Package instance implements the commands that manage MySQL instances.
package instance

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tombee/mysqlctl/internal/commands/shared"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [datadir]",
		Short: "Initialize a data directory",
		Long: `Create a data directory and populate it with the system tables, using
mysql_install_db or mysqld --initialize-insecure depending on the
distribution. Initializing a directory twice fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
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

	if err := srv.InitializeDataDirectory(ctx, dataDir); err != nil {
		return shared.Classify("failed to initialize data directory", err)
	}

	abs, _ := filepath.Abs(dataDir)
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			DataDir string `json:"data_dir"`
		}{shared.NewJSONResponse("init", true), abs})
	}
	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Initialized "+abs))
	}
	return nil
}
