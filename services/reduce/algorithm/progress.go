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
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Progress reports fraction of this execution's work done.
//
// Description:
//
//	The fraction is mapped into the instance's range, clamped to [0,1] and
//	never lower than the last report (regressions are clamped). The mapped
//	value is posted to subscribers and, for a child created with
//	emitProgress, forwarded to the parent.
//
// Thread Safety: Safe for concurrent use; reports are delivered in the
// order their values were accepted.
func (a *Algorithm) Progress(fraction float64, message string) {
	mapped := clamp01(a.low + clamp01(fraction)*(a.high-a.low))

	a.progMu.Lock()
	if mapped < a.lastProgress {
		mapped = a.lastProgress
	}
	a.lastProgress = mapped
	a.post(KindProgress, func(n *Notification) {
		n.Progress = mapped
		n.Message = message
	})
	a.progMu.Unlock()

	if a.isChild && a.emitProgress && a.parent != nil {
		a.parent.Progress(mapped, message)
	}
}

// LastProgress returns the last mapped progress value of this execution.
func (a *Algorithm) LastProgress() float64 {
	a.progMu.Lock()
	defer a.progMu.Unlock()
	return a.lastProgress
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// -----------------------------------------------------------------------------
// Progress helper
// -----------------------------------------------------------------------------

// ProgressReporter reports N equal steps over a sub-range of an algorithm.
//
// Description:
//
//	Each Report advances one step, checks for cancellation, and posts a
//	progress notification no more often than the environment's progress
//	interval. The final step always posts.
//
// Thread Safety: Safe for concurrent use.
type ProgressReporter struct {
	alg       *Algorithm
	low, high float64
	limiter   *rate.Limiter

	mu    sync.Mutex
	steps int
	done  int
}

// NewProgress creates a reporter over [low, high] of a's own range.
func NewProgress(a *Algorithm, low, high float64, steps int) *ProgressReporter {
	low, high = clamp01(low), clamp01(high)
	if high < low {
		low, high = high, low
	}
	interval := a.env.ProgressInterval
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &ProgressReporter{
		alg:     a,
		low:     low,
		high:    high,
		limiter: rate.NewLimiter(limit, 1),
		steps:   max(steps, 1),
	}
}

// Report advances one step.
//
// Outputs:
//   - error: *cancel.CancelError if cancellation was requested.
func (p *ProgressReporter) Report(ctx context.Context, message string) error {
	return p.ReportIncrement(ctx, 1, message)
}

// ReportIncrement advances n steps.
func (p *ProgressReporter) ReportIncrement(ctx context.Context, n int, message string) error {
	if err := p.alg.InterruptionPoint(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.done = min(p.done+n, p.steps)
	frac := p.low + (p.high-p.low)*float64(p.done)/float64(p.steps)
	final := p.done == p.steps
	p.mu.Unlock()

	if final || p.limiter.Allow() {
		p.alg.Progress(frac, message)
	}
	return nil
}

// ResetNumSteps restarts the reporter with a new step count and sub-range.
func (p *ProgressReporter) ResetNumSteps(steps int, low, high float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = max(steps, 1)
	p.done = 0
	p.low, p.high = clamp01(low), clamp01(high)
}
