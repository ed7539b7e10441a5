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
	"strings"
)

// Option modifies how Start treats an instance.
type Option uint8

const (
	// ShutdownExisting stops an instance that is already serving the data
	// directory before starting a new one.
	ShutdownExisting Option = 1 << iota

	// AutoShutdown stops the instance when the calling process shuts down.
	AutoShutdown
)

func (o Option) String() string {
	switch o {
	case ShutdownExisting:
		return "shutdown-existing"
	case AutoShutdown:
		return "auto-shutdown"
	default:
		return fmt.Sprintf("Option(%d)", uint8(o))
	}
}

// InstanceSpec describes how to start an instance. It is a value type:
// the With methods return modified copies.
type InstanceSpec struct {
	options Option

	// Port is the TCP port to listen on. Zero means no port is set.
	Port int

	// DefaultsFile is an option file passed to the server. Empty means
	// the server reads no option files at all.
	DefaultsFile string
}

// NewInstanceSpec returns a spec with the given options and no port or
// defaults file.
func NewInstanceSpec(opts ...Option) InstanceSpec {
	var s InstanceSpec
	for _, o := range opts {
		s.options |= o
	}
	return s
}

// NewEmbeddedInstanceSpec returns a spec for an instance owned by the
// calling process: it takes over a running instance, listens on port and is
// stopped when the caller exits.
func NewEmbeddedInstanceSpec(port int) InstanceSpec {
	return NewInstanceSpec(ShutdownExisting, AutoShutdown).WithPort(port)
}

// WithOption returns a copy with o added.
func (s InstanceSpec) WithOption(o Option) InstanceSpec {
	s.options |= o
	return s
}

// WithPort returns a copy listening on port.
func (s InstanceSpec) WithPort(port int) InstanceSpec {
	s.Port = port
	return s
}

// WithDefaultsFile returns a copy that reads options from path.
func (s InstanceSpec) WithDefaultsFile(path string) InstanceSpec {
	s.DefaultsFile = path
	return s
}

// Has reports whether o is set.
func (s InstanceSpec) Has(o Option) bool {
	return s.options&o != 0
}

// Options returns the options that are set, in declaration order.
func (s InstanceSpec) Options() []Option {
	var opts []Option
	for _, o := range []Option{ShutdownExisting, AutoShutdown} {
		if s.Has(o) {
			opts = append(opts, o)
		}
	}
	return opts
}

func (s InstanceSpec) String() string {
	parts := make([]string, 0, 4)
	for _, o := range s.Options() {
		parts = append(parts, o.String())
	}
	if s.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", s.Port))
	}
	if s.DefaultsFile != "" {
		parts = append(parts, "defaults-file="+s.DefaultsFile)
	}
	return "InstanceSpec{" + strings.Join(parts, ", ") + "}"
}
