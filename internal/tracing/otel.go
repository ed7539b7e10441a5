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
	"errors"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the OpenTelemetry tracer and meter providers.
type Provider struct {
	tp               *sdktrace.TracerProvider
	mp               *metric.MeterProvider
	registry         prom.Gatherer
	metricsCollector *MetricsCollector
}

// ProviderOption configures NewProvider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	registerer prom.Registerer
	gatherer   prom.Gatherer
	processors []sdktrace.SpanProcessor
}

// WithRegistry exports otel metrics into reg instead of the default
// Prometheus registry.
func WithRegistry(reg *prom.Registry) ProviderOption {
	return func(o *providerOptions) {
		o.registerer = reg
		o.gatherer = reg
	}
}

// WithSpanProcessor adds a processor in addition to the configured exporters.
func WithSpanProcessor(sp sdktrace.SpanProcessor) ProviderOption {
	return func(o *providerOptions) {
		o.processors = append(o.processors, sp)
	}
}

// NewProvider creates the tracer and meter providers and installs them as
// the otel globals. Spans are only recorded when cfg.Enabled is set;
// operation metrics are always collected.
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	o := providerOptions{
		registerer: prom.DefaultRegisterer,
		gatherer:   prom.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	// No schema URL, so merging with the default resource cannot conflict
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{registry: o.gatherer}

	if cfg.Enabled {
		tpOpts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(NewSampler(cfg.Sampling)),
		}
		for _, sp := range append(CreateProcessors(ctx, cfg), o.processors...) {
			tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
		}
		p.tp = sdktrace.NewTracerProvider(tpOpts...)
		otel.SetTracerProvider(p.tp)
	}

	promExporter, err := prometheus.New(prometheus.WithRegisterer(o.registerer))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	p.mp = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)
	otel.SetMeterProvider(p.mp)

	p.metricsCollector, err = NewMetricsCollector(p.mp)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}

	return p, nil
}

// Tracer returns a tracer for the given instrumentation scope. With tracing
// disabled the global (no-op) tracer is returned.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.tp == nil {
		return otel.Tracer(name)
	}
	return p.tp.Tracer(name)
}

// MetricsCollector returns the collector for operation metrics.
func (p *Provider) MetricsCollector() *MetricsCollector {
	if p == nil {
		return nil
	}
	return p.metricsCollector
}

// MetricsHandler returns an HTTP handler for the Prometheus endpoint.
func (p *Provider) MetricsHandler() http.Handler {
	if p == nil || p.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// ForceFlush exports all pending spans synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
