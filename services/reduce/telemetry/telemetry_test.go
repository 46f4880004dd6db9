// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		traces  string
		metrics string
		wantErr error
	}{
		{name: "nothing", traces: ExporterNone, metrics: ExporterNone},
		{name: "empty means none", traces: "", metrics: ""},
		{name: "stdout", traces: ExporterStdout, metrics: ExporterStdout},
		{name: "unknown trace exporter", traces: "zipkin", metrics: ExporterNone, wantErr: ErrUnknownExporter},
		{name: "unknown metric exporter", traces: ExporterStdout, metrics: "statsd", wantErr: ErrUnknownExporter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TraceExporter = tt.traces
			cfg.MetricExporter = tt.metrics

			shutdown, err := Init(context.Background(), cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Init: %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Errorf("shutdown: %v", err)
			}
		})
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if _, err := Init(nil, DefaultConfig()); !errors.Is(err, ErrNilContext) {
		t.Errorf("err = %v, want ErrNilContext", err)
	}
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "otlp")
	t.Setenv("REDUCE_ENV", "")
	cfg := DefaultConfig()
	if cfg.TraceExporter != ExporterOTLP {
		t.Errorf("TraceExporter = %q, want otlp", cfg.TraceExporter)
	}
	if cfg.Environment != "development" {
		t.Errorf("empty REDUCE_ENV should fall back, got %q", cfg.Environment)
	}
	if cfg.SampleRatio != 1 {
		t.Errorf("SampleRatio = %v, want 1", cfg.SampleRatio)
	}
}

func TestNewMetrics_Noop(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.ExecutionsTotal == nil || m.ExecutionDuration == nil || m.ActiveExecutions == nil ||
		m.CancellationsTotal == nil || m.ValidationFailuresTotal == nil {
		t.Fatal("every instrument should be created")
	}
	m.ActiveExecutions.Add(context.Background(), 1)
}

func TestMetricsHandler(t *testing.T) {
	if reflect.ValueOf(MetricsHandler()).Pointer() != reflect.ValueOf(MetricsHandler()).Pointer() {
		t.Error("handler should be built once")
	}
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSpanHelpers(t *testing.T) {
	// Not recording: both helpers must be no-ops.
	idle := trace.SpanFromContext(context.Background())
	RecordError(idle, errors.New("x"))
	SetSpanOK(idle)
	RecordError(nil, errors.New("x"))
	SetSpanOK(nil)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "exec",
		trace.WithAttributes(ExecutionAttributes("Scale", 2, true, "abc")...))
	RecordError(span, errors.New("boom"))
	span.End()

	ro, ok := span.(sdktrace.ReadOnlySpan)
	if !ok {
		t.Fatal("sdk span should be a ReadOnlySpan")
	}
	if got := ro.Status().Description; got != "boom" {
		t.Errorf("status description = %q, want boom", got)
	}
	var sawChild bool
	for _, kv := range ro.Attributes() {
		if kv.Key == AttrChild && kv.Value.AsBool() {
			sawChild = true
		}
	}
	if !sawChild {
		t.Error("child attribute missing")
	}

	var buf bytes.Buffer
	logger := LoggerWithTrace(ctx, slog.New(slog.NewTextHandler(&buf, nil)))
	logger.Info("hello")
	if !strings.Contains(buf.String(), "trace.trace_id="+span.SpanContext().TraceID().String()) {
		t.Errorf("log line missing trace id: %s", buf.String())
	}
}

func TestLoggerWithTrace_NoSpan(t *testing.T) {
	l := slog.Default()
	if got := LoggerWithTrace(context.Background(), l); got != l {
		t.Error("logger should be unchanged without a span")
	}
}
