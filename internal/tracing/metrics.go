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
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records per-operation metrics through OpenTelemetry.
// A nil collector records nothing.
type MetricsCollector struct {
	meter metric.Meter

	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("mysqlctl")

	mc := &MetricsCollector{
		meter: meter,
	}

	var err error

	mc.operationsTotal, err = meter.Int64Counter(
		"mysqlctl_operations",
		metric.WithDescription("Total number of server operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	mc.operationDuration, err = meter.Float64Histogram(
		"mysqlctl_operation_duration",
		metric.WithDescription("Server operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordOperation records one completed operation such as "start" or
// "initialize".
func (mc *MetricsCollector) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	if mc == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	mc.operationsTotal.Add(ctx, 1, attrs)
	mc.operationDuration.Record(ctx, duration.Seconds(), attrs)
}
