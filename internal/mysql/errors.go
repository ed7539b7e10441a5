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

import "fmt"

// InstanceAlreadyRunningError is returned by Start when an instance already
// serves the data directory and ShutdownExisting was not requested.
type InstanceAlreadyRunningError struct {
	DataDir string
}

func (e *InstanceAlreadyRunningError) Error() string {
	return fmt.Sprintf("an instance is already running in %s", e.DataDir)
}

// VersionParseError is returned when mysqld --version prints something
// that does not contain a version number.
type VersionParseError struct {
	RawOutput string
}

func (e *VersionParseError) Error() string {
	return fmt.Sprintf("unable to parse version from %q", e.RawOutput)
}

// DistributionError is returned when a required binary is missing from a
// distribution.
type DistributionError struct {
	Path   string
	Binary string
}

func (e *DistributionError) Error() string {
	return fmt.Sprintf("%s binary not found in distribution at %s", e.Binary, e.Path)
}
