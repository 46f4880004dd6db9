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
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for algorithm executions.
const (
	AttrAlgorithm = attribute.Key("reduce.algorithm")
	AttrVersion   = attribute.Key("reduce.algorithm.version")
	AttrChild     = attribute.Key("reduce.algorithm.child")
	AttrExecID    = attribute.Key("reduce.exec_id")
	AttrDuration  = attribute.Key("reduce.duration_ms")
)

// ExecutionAttributes labels one algorithm execution span.
func ExecutionAttributes(name string, version int, child bool, execID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrAlgorithm.String(name),
		AttrVersion.Int(version),
		AttrChild.Bool(child),
		AttrExecID.String(execID),
	}
}

// RecordError marks span failed with err. No-op for a nil span or error,
// or a span that is not recording.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks span successful and adds attrs.
func SetSpanOK(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// LoggerWithTrace returns logger annotated with the trace and span IDs of
// the span in ctx, or logger itself when there is none.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return logger
	}
	return logger.With(slog.Group("trace",
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	))
}
