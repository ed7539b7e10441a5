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

import "strconv"

// startArgs builds the mysqld_safe command line. mysqld_safe only honours
// --no-defaults and --defaults-file as the first argument.
func startArgs(dist *Distribution, dataDir string, spec InstanceSpec) []string {
	args := make([]string, 0, 8)

	if spec.DefaultsFile != "" {
		args = append(args, "--defaults-file="+spec.DefaultsFile)
	} else {
		args = append(args, "--no-defaults")
	}

	args = append(args,
		"--basedir="+dist.Path,
		"--datadir="+dataDir,
		"--socket="+SocketPath(dataDir),
		"--log-error="+ErrorLogPath(dataDir),
		"--pid-file="+PIDFilePath(dataDir),
	)

	if spec.Port > 0 {
		args = append(args, "--port="+strconv.Itoa(spec.Port))
	}

	if spec.Port <= 0 && spec.DefaultsFile == "" {
		args = append(args, "--skip-networking")
	}

	return args
}

// installDBArgs builds the mysql_install_db command line.
func installDBArgs(dist *Distribution, dataDir string) []string {
	return []string{
		"--no-defaults",
		"--basedir=" + dist.Path,
		"--datadir=" + dataDir,
	}
}

// initializeArgs builds the mysqld --initialize-insecure command line used
// by distributions without mysql_install_db.
func initializeArgs(dist *Distribution, dataDir string) []string {
	return []string{
		"--no-defaults",
		"--initialize-insecure",
		"--basedir=" + dist.Path,
		"--datadir=" + dataDir,
	}
}

// adminArgs builds a mysqladmin command line addressing the instance by
// its socket.
func adminArgs(dataDir, command string) []string {
	return []string{
		"--no-defaults",
		"--user=root",
		"--connect-timeout=5",
		"--socket=" + SocketPath(dataDir),
		command,
	}
}
