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

package mysql

import (
	"testing"

	"github.com/tombee/mysqlctl/internal/testing/fakemysql"
)

func newFakeDist(t *testing.T, overrides map[string]string) string {
	return fakemysql.Write(t, overrides)
}

func writeScript(t *testing.T, root, rel, content string) {
	fakemysql.WriteScript(t, root, rel, content)
}

func skipOnSpawnError(t *testing.T, err error) {
	t.Helper()
	fakemysql.SkipOnSpawnError(t, err)
}

func skipSpawnTests(t *testing.T) {
	t.Helper()
	fakemysql.SkipSpawnTests(t)
}
