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

package tracing

import (
	"time"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are recorded and exported.
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name,omitempty"`

	// ServiceVersion is the application version.
	ServiceVersion string `yaml:"-"`

	// Sampling configures trace sampling.
	Sampling SamplingConfig `yaml:"sampling"`

	// Exporters configures span export destinations.
	Exporters []ExporterConfig `yaml:"exporters,omitempty"`

	// BatchInterval is how often to flush spans (default: 5s).
	BatchInterval time.Duration `yaml:"batch_interval,omitempty"`
}

// SamplingConfig controls which traces are recorded.
type SamplingConfig struct {
	// Rate is the fraction of traces to sample (0.0 - 1.0).
	// Zero means sample everything.
	Rate float64 `yaml:"rate"`
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is the exporter type: "console", "otlp", "otlp_http" or "none".
	Type string `yaml:"type"`

	// Endpoint is the OTLP receiver address.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Headers are additional headers for authentication.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Insecure disables TLS for OTLP exporters.
	Insecure bool `yaml:"insecure,omitempty"`

	// CACertPath is a CA certificate used to verify the receiver.
	CACertPath string `yaml:"ca_cert,omitempty"`
}

// DefaultConfig returns tracing disabled with the mysqlctl service name.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		ServiceName:   "mysqlctl",
		BatchInterval: 5 * time.Second,
	}
}
