// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithm

import (
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianReduce/services/reduce/telemetry"
)

var (
	tracer = otel.Tracer("reduce.algorithm")

	metricsOnce sync.Once
	execMetrics *telemetry.Metrics
)

// metrics returns the process-wide instruments, or nil if registration failed.
func metrics() *telemetry.Metrics {
	metricsOnce.Do(func() {
		m, err := telemetry.NewMetrics(otel.Meter("reduce.algorithm"))
		if err != nil {
			slog.Default().Warn("algorithm metrics disabled", slog.String("error", err.Error()))
			return
		}
		execMetrics = m
	})
	return execMetrics
}
