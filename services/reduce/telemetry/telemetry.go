// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry decides where the runtime's traces and metrics go.
//
// Algorithms, the data service and the config loader record through
// otel.Tracer / otel.Meter and the Prometheus default registry without
// knowing about exporters. Init swaps in SDK providers; without it the
// global no-op providers stay installed and recording is free.
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT
// and REDUCE_ENV seed DefaultConfig.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// Exporter names accepted in Config.
const (
	ExporterNone       = "none"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext is returned when Init receives a nil context.
	ErrNilContext = errors.New("context must not be nil")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("unknown exporter")
)

// Config selects exporters and labels the process.
type Config struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`

	// MetricExporter is "prometheus", "stdout" or "none". The prometheus
	// exporter registers with the default registry served by MetricsHandler.
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`

	// OTLPEndpoint is the OTLP gRPC trace receiver.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`

	// SampleRatio is the fraction of root executions traced. Child
	// executions follow their parent.
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig exports nothing unless the OTEL_* variables say otherwise.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "reduce",
		ServiceVersion: kernel.Version,
		Environment:    envOr("REDUCE_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", ExporterNone),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", ExporterNone),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
		SampleRatio:    1,
	}
}

// shutdownChain stops providers in reverse installation order.
type shutdownChain []func(context.Context) error

func (c shutdownChain) run(ctx context.Context) error {
	errs := make([]error, 0, len(c))
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i](ctx))
	}
	return errors.Join(errs...)
}

// Init installs the global tracer and meter providers selected by cfg.
//
// Outputs:
//   - shutdown: Flushes and stops what was installed. Call once on exit.
//   - error: ErrNilContext, or an exporter construction error wrapping
//     ErrUnknownExporter for unsupported names.
//
// Thread Safety: Call once at process start.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	res := newResource(cfg)

	var chain shutdownChain
	if enabled(cfg.TraceExporter) {
		exp, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("trace exporter %q: %w", cfg.TraceExporter, err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		)
		otel.SetTracerProvider(tp)
		chain = append(chain, tp.Shutdown)
	}

	if enabled(cfg.MetricExporter) {
		reader, err := newMetricReader(cfg)
		if err != nil {
			_ = chain.run(ctx)
			return nil, fmt.Errorf("metric exporter %q: %w", cfg.MetricExporter, err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
		otel.SetMeterProvider(mp)
		chain = append(chain, mp.Shutdown)
	}

	return chain.run, nil
}

func enabled(exporter string) bool {
	return exporter != "" && exporter != ExporterNone
}

func newResource(cfg Config) *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
		attribute.String("reduce.framework", kernel.FrameworkName),
	)
}

// newSpanExporter builds the trace exporter. The stdout exporter writes
// to stderr so CLI output on stdout stays parseable.
func newSpanExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	default:
		return nil, ErrUnknownExporter
	}
}

func newMetricReader(cfg Config) (sdkmetric.Reader, error) {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		return promexporter.New()
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	default:
		return nil, ErrUnknownExporter
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

var metricsHandler = sync.OnceValue(func() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
})

// MetricsHandler serves the default Prometheus registry, where the data
// service, archive and config loader register, and where the OTel
// prometheus exporter publishes when selected.
func MetricsHandler() http.Handler {
	return metricsHandler()
}
