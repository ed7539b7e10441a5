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

package shared

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/tombee/mysqlctl/internal/config"
	"github.com/tombee/mysqlctl/internal/mysql"
)

// InstanceFlags are the flags shared by commands that start an instance.
// Unset flags fall back to the configuration.
type InstanceFlags struct {
	Port             int
	DefaultsFile     string
	ShutdownExisting bool
	Timeout          time.Duration

	fs *pflag.FlagSet
}

// Register adds the flags to fs.
func (f *InstanceFlags) Register(fs *pflag.FlagSet) {
	f.fs = fs
	fs.IntVar(&f.Port, "port", 0, "TCP port to listen on (default: socket only)")
	fs.StringVar(&f.DefaultsFile, "defaults-file", "", "Option file passed to the server")
	fs.BoolVar(&f.ShutdownExisting, "shutdown-existing", false, "Stop an instance already serving the data directory")
	fs.DurationVar(&f.Timeout, "timeout", 0, "How long to wait for the instance to answer (default from config)")
}

// Spec builds the instance spec from the flags and cfg.
func (f *InstanceFlags) Spec(cfg *config.Config) mysql.InstanceSpec {
	spec := mysql.NewInstanceSpec()

	port := cfg.Instance.Port
	if f.changed("port") {
		port = f.Port
	}
	defaultsFile := cfg.Instance.DefaultsFile
	if f.changed("defaults-file") {
		defaultsFile = f.DefaultsFile
	}
	if f.ShutdownExisting || (!f.changed("shutdown-existing") && cfg.Instance.ShutdownExisting) {
		spec = spec.WithOption(mysql.ShutdownExisting)
	}
	if cfg.Instance.AutoShutdown {
		spec = spec.WithOption(mysql.AutoShutdown)
	}

	return spec.WithPort(port).WithDefaultsFile(defaultsFile)
}

// StartupTimeout returns --timeout, or the configured timeout.
func (f *InstanceFlags) StartupTimeout(cfg *config.Config) time.Duration {
	if f.changed("timeout") {
		return f.Timeout
	}
	return cfg.Startup.Timeout
}

func (f *InstanceFlags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}
