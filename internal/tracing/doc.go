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
Package tracing provides OpenTelemetry tracing and metrics for mysqlctl.

Server operations (start, stop, initialize, version) run inside spans and
record their duration through a MetricsCollector. Spans are exported to the
configured destinations; metrics are exposed through Prometheus.

# Quick Start

Create a provider at startup and shut it down on exit:

	provider, err := tracing.NewProvider(ctx, tracing.Config{
	    Enabled:     true,
	    ServiceName: "mysqlctl",
	    Exporters: []tracing.ExporterConfig{
	        {Type: "otlp", Endpoint: "localhost:4317", Insecure: true},
	    },
	})
	if err != nil {
	    return err
	}
	defer provider.Shutdown(ctx)

# Exporters

  - console: pretty-printed spans on stdout, for development
  - otlp: OTLP over gRPC
  - otlp_http: OTLP over HTTP
  - none: no export

Exporters that fail to initialize are skipped with a warning.

# Metrics

The provider's MetricsHandler serves both the otel operation metrics and
the Prometheus collectors registered by other packages:

	http.Handle("/metrics", provider.MetricsHandler())
*/
package tracing
