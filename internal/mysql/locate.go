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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Candidate locations of each binary relative to the distribution root,
// in order of preference.
var (
	mysqldPatterns     = []string{"bin/mysqld", "libexec/mysqld", "sbin/mysqld", "*/bin/mysqld"}
	mysqldSafePatterns = []string{"bin/mysqld_safe", "*/bin/mysqld_safe"}
	mysqladminPatterns = []string{"bin/mysqladmin", "*/bin/mysqladmin"}
	installDBPatterns  = []string{"scripts/mysql_install_db", "bin/mysql_install_db", "*/scripts/mysql_install_db"}
)

// Distribution is an unpacked MySQL binary distribution.
type Distribution struct {
	// Path is the absolute root of the distribution. It is passed to the
	// server as --basedir.
	Path string

	Mysqld     string
	MysqldSafe string
	Mysqladmin string

	// InstallDB is empty for distributions that initialize data
	// directories with mysqld --initialize-insecure instead.
	InstallDB string
}

// LocateDistribution finds the binaries of the distribution rooted at path.
// Only mysqld is required up front; the other binaries are checked by the
// operations that need them.
func LocateDistribution(path string) (*Distribution, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve distribution path: %w", err)
	}

	fsys := os.DirFS(root)
	d := &Distribution{Path: root}

	if d.Mysqld = findBinary(fsys, root, mysqldPatterns); d.Mysqld == "" {
		return nil, &DistributionError{Path: root, Binary: "mysqld"}
	}
	d.MysqldSafe = findBinary(fsys, root, mysqldSafePatterns)
	d.Mysqladmin = findBinary(fsys, root, mysqladminPatterns)
	d.InstallDB = findBinary(fsys, root, installDBPatterns)

	return d, nil
}

// require returns the binary path or a DistributionError naming it.
func (d *Distribution) require(name, path string) (string, error) {
	if path == "" {
		return "", &DistributionError{Path: d.Path, Binary: name}
	}
	return path, nil
}

// findBinary returns the first executable regular file matching one of
// patterns, or an empty string.
func findBinary(fsys fs.FS, root string, patterns []string) string {
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			full := filepath.Join(root, filepath.FromSlash(m))
			info, err := os.Stat(full)
			if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0111 == 0 {
				continue
			}
			return full
		}
	}
	return ""
}
