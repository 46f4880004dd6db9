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
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics is the instrument set recorded around algorithm execution.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// ExecutionsTotal counts executions by algorithm, child flag and status.
	ExecutionsTotal metric.Int64Counter

	// ExecutionDuration records exec() wall time in seconds.
	ExecutionDuration metric.Float64Histogram

	// ActiveExecutions tracks executions currently running.
	ActiveExecutions metric.Int64UpDownCounter

	// CancellationsTotal counts executions that ended by cancellation.
	CancellationsTotal metric.Int64Counter

	// ValidationFailuresTotal counts executions rejected before exec().
	ValidationFailuresTotal metric.Int64Counter
}

// NewMetrics registers the instruments with meter.
//
// Example:
//
//	m, err := telemetry.NewMetrics(otel.Meter("reduce.algorithm"))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	m.ExecutionsTotal.Add(ctx, 1)
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ExecutionsTotal, err = meter.Int64Counter(
		"reduce_algorithm_executions_total",
		metric.WithDescription("Total algorithm executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create executions_total: %w", err)
	}

	m.ExecutionDuration, err = meter.Float64Histogram(
		"reduce_algorithm_execution_duration_seconds",
		metric.WithDescription("Algorithm execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create execution_duration: %w", err)
	}

	m.ActiveExecutions, err = meter.Int64UpDownCounter(
		"reduce_algorithm_active_executions",
		metric.WithDescription("Currently running algorithm executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active_executions: %w", err)
	}

	m.CancellationsTotal, err = meter.Int64Counter(
		"reduce_algorithm_cancellations_total",
		metric.WithDescription("Algorithm executions ended by cancellation"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cancellations_total: %w", err)
	}

	m.ValidationFailuresTotal, err = meter.Int64Counter(
		"reduce_algorithm_validation_failures_total",
		metric.WithDescription("Algorithm executions rejected by property validation"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create validation_failures_total: %w", err)
	}

	return m, nil
}
