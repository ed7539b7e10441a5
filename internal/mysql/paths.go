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
	"os"
	"path/filepath"
)

// File names the server is told to use inside its data directory.
const (
	socketFile   = "mysql.sock"
	errorLogFile = "error.log"
	pidFile      = "mysqld.pid"
)

// SocketPath returns the Unix socket of the instance serving dataDir.
func SocketPath(dataDir string) string {
	return filepath.Join(dataDir, socketFile)
}

// ErrorLogPath returns the error log of the instance serving dataDir.
func ErrorLogPath(dataDir string) string {
	return filepath.Join(dataDir, errorLogFile)
}

// PIDFilePath returns the PID file of the instance serving dataDir.
func PIDFilePath(dataDir string) string {
	return filepath.Join(dataDir, pidFile)
}

// detachedOutputPath is where a detached instance writes its output. A
// missing data directory cannot hold the error log; the start fails there
// anyway, so the output is discarded.
func detachedOutputPath(dataDir string) string {
	if _, err := os.Stat(dataDir); err != nil {
		return os.DevNull
	}
	return ErrorLogPath(dataDir)
}
