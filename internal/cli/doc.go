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

/*
Package cli builds the mysqlctl command tree.

	mysqlctl
	├── init      Initialize a data directory
	├── start     Start an instance and leave it running
	├── stop      Stop the instance serving a data directory
	├── status    Show whether instances are running
	├── run       Run an instance in the foreground
	├── history   List recorded lifecycle events
	├── version   Show version information
	└── help      Help about any command

Global flags (--config, --dist, --verbose, --quiet, --json) are bound to
variables in the shared package so every command reads them the same way.
Errors are returned as shared.ExitError and turned into exit codes by
HandleExitError.
*/
package cli
