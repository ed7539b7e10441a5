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

// Package fakemysql writes a fake MySQL binary distribution made of shell
// scripts, for tests that drive the real process supervision code.
package fakemysql

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// VersionLine is what the fake mysqld prints for --version.
const VersionLine = "mysqld  Ver 5.6.21 for Linux on x86_64 (MySQL Community Server (GPL))"

// Scripts emulate a binary distribution. mysqld_safe "serves" an
// instance by creating its socket path as a plain file and runs until
// mysqladmin shutdown removes it.
var Scripts = map[string]string{
	"bin/mysqld": `#!/bin/sh
datadir=""
for arg in "$@"; do
  case "$arg" in
    --version) echo "` + VersionLine + `"; exit 0 ;;
    --datadir=*) datadir="${arg#--datadir=}" ;;
  esac
done
if [ -n "$datadir" ]; then
  mkdir -p "$datadir/mysql" && exit 0
fi
echo "unsupported invocation: $*" >&2
exit 1
`,
	"scripts/mysql_install_db": `#!/bin/sh
datadir=""
for arg in "$@"; do
  case "$arg" in
    --datadir=*) datadir="${arg#--datadir=}" ;;
  esac
done
if [ -z "$datadir" ]; then
  echo "no datadir given" >&2
  exit 1
fi
if [ -d "$datadir/mysql" ]; then
  echo "data directory $datadir already initialized" >&2
  exit 1
fi
mkdir -p "$datadir/mysql"
echo "Installing MySQL system tables..."
echo "OK"
`,
	"bin/mysqld_safe": `#!/bin/sh
datadir=""; socket=""; errlog=""; pidfile=""
for arg in "$@"; do
  case "$arg" in
    --datadir=*) datadir="${arg#--datadir=}" ;;
    --socket=*) socket="${arg#--socket=}" ;;
    --log-error=*) errlog="${arg#--log-error=}" ;;
    --pid-file=*) pidfile="${arg#--pid-file=}" ;;
  esac
done
if [ ! -d "$datadir/mysql" ]; then
  echo "[ERROR] Fatal error: Can't open and lock privilege tables" 2>/dev/null >>"$errlog"
  exit 1
fi
echo "$*" > "$datadir/args"
echo $$ > "$pidfile"
echo "Starting mysqld daemon with databases from $datadir"
sleep 0.2
touch "$socket"
while [ -e "$socket" ]; do
  sleep 0.05
done
rm -f "$pidfile"
echo "mysqld from pid file $pidfile ended"
exit 0
`,
	"bin/mysqladmin": `#!/bin/sh
socket=""; cmd=""
for arg in "$@"; do
  case "$arg" in
    --socket=*) socket="${arg#--socket=}" ;;
    -*) ;;
    *) cmd="$arg" ;;
  esac
done
case "$cmd" in
  ping)
    if [ -e "$socket" ]; then
      echo "mysqld is alive"
      exit 0
    fi
    echo "mysqladmin: connect to server at 'localhost' failed" >&2
    exit 1 ;;
  shutdown)
    if [ -e "$socket" ]; then
      rm -f "$socket"
      exit 0
    fi
    echo "mysqladmin: connect to server at 'localhost' failed" >&2
    exit 1 ;;
  *)
    echo "unknown command '$cmd'" >&2
    exit 2 ;;
esac
`,
}

// WriteScript writes an executable script below root.
func WriteScript(t testing.TB, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// Write creates a fake distribution in a temp dir and returns its root.
// overrides replace or add scripts; an empty override removes the script.
func Write(t testing.TB, overrides map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range Scripts {
		if o, ok := overrides[rel]; ok {
			content = o
		}
		if content != "" {
			WriteScript(t, root, rel, content)
		}
	}
	for rel, content := range overrides {
		if _, ok := Scripts[rel]; !ok && content != "" {
			WriteScript(t, root, rel, content)
		}
	}
	return root
}

// SkipOnSpawnError skips the test when err shows the environment forbids
// spawning processes.
func SkipOnSpawnError(t testing.TB, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
	}
}

// SkipSpawnTests skips the test when SKIP_SPAWN_TESTS is set.
func SkipSpawnTests(t testing.TB) {
	t.Helper()
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}
}
