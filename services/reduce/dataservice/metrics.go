// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataservice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reduce",
			Subsystem: "dataservice",
			Name:      "operations_total",
			Help:      "Data service operations by service, operation and result",
		},
		[]string{"service", "op", "result"},
	)

	entriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "reduce",
			Subsystem: "dataservice",
			Name:      "entries",
			Help:      "Number of named entries held by the data service",
		},
		[]string{"service"},
	)
)

func recordOp(service, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(service, op, result).Inc()
}
