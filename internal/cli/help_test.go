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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/mysqlctl/internal/commands/shared"
)

func TestHelp_JSON(t *testing.T) {
	out, code := execute(t, "help", "--json")
	require.Equal(t, shared.ExitSuccess, code, out)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "help", resp.JSONResponse.Command)
	assert.Nil(t, resp.Target)

	var names []string
	for _, c := range resp.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "start")
	assert.Contains(t, names, "history")
	assert.Equal(t, "the server exited during startup", resp.ExitCodes[shared.ExitStartupFailed])
}

func TestHelp_JSONCommand(t *testing.T) {
	out, code := execute(t, "help", "start", "--json")
	require.Equal(t, shared.ExitSuccess, code, out)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "help", resp.JSONResponse.Command)
	require.NotNil(t, resp.Target)
	assert.Equal(t, "start", resp.Target.Name)
	assert.Equal(t, GroupInstance, resp.Target.Group)

	var flags []string
	for _, f := range resp.Target.Flags {
		flags = append(flags, f.Name)
	}
	assert.Contains(t, flags, "port")
	assert.Contains(t, flags, "shutdown-existing")
}

func TestHelp_UnknownCommand(t *testing.T) {
	_, code := execute(t, "help", "nope")
	assert.Equal(t, shared.ExitUsage, code)
}
