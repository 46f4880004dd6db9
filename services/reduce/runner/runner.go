// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner drives one algorithm at a time on behalf of an interactive client.
//
// Starting a new algorithm cancels and detaches the previous one, so a
// client only ever sees notifications from the algorithm it started last.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/notify"
)

// DefaultCancelTimeout bounds CancelRunningAlgorithm's wait.
const DefaultCancelTimeout = time.Second

// Config configures a Runner.
type Config struct {
	// CancelTimeout bounds how long CancelRunningAlgorithm waits. Default 1s.
	CancelTimeout time.Duration

	// Logger is the parent logger. Default slog.Default().
	Logger *slog.Logger
}

// Runner owns the current algorithm and relays its notifications.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
	center  *notify.Center[algorithm.NotificationKind, algorithm.Notification]

	mu      sync.Mutex
	current *algorithm.Algorithm
	handle  *algorithm.Handle
	subID   string
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = DefaultCancelTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With(slog.String("component", "algorithm_runner"))
	return &Runner{
		timeout: cfg.CancelTimeout,
		logger:  logger,
		center: notify.NewCenter[algorithm.NotificationKind, algorithm.Notification](
			notify.WithName("algorithm_runner"),
			notify.WithLogger(logger),
		),
	}
}

// Subscribe registers handler for notifications of the current algorithm.
func (r *Runner) Subscribe(handler func(algorithm.Notification), kinds ...algorithm.NotificationKind) string {
	return r.center.Subscribe(handler, kinds...)
}

// Unsubscribe removes a subscription.
func (r *Runner) Unsubscribe(id string) bool {
	return r.center.Unsubscribe(id)
}

// StartAlgorithm makes alg current and executes it asynchronously.
//
// Description:
//
//	A previous algorithm that is still running is cancelled as superseded
//	and detached: its remaining notifications are no longer relayed. The
//	new algorithm's notifications are relayed to subscribers from its
//	worker goroutine.
//
// Outputs:
//   - *algorithm.Handle: Join point for the new execution.
//   - error: From ExecuteAsync; the previous algorithm stays detached.
func (r *Runner) StartAlgorithm(ctx context.Context, alg *algorithm.Algorithm) (*algorithm.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := r.current; prev != nil {
		r.detachLocked()
		if prev.IsRunning() {
			prev.CancelWithReason(cancel.CancelReason{
				Type:      cancel.CancelSuperseded,
				Message:   "superseded by " + alg.Name(),
				Component: "algorithm_runner",
			})
			r.logger.Info("previous algorithm superseded",
				slog.String("previous", prev.Name()),
				slog.String("next", alg.Name()),
			)
		}
	}

	subID := alg.Subscribe(r.center.Post)
	h, err := alg.ExecuteAsync(ctx)
	if err != nil {
		alg.Unsubscribe(subID)
		return nil, err
	}
	r.current, r.handle, r.subID = alg, h, subID
	return h, nil
}

func (r *Runner) detachLocked() {
	if r.current != nil && r.subID != "" {
		r.current.Unsubscribe(r.subID)
	}
	r.current, r.handle, r.subID = nil, nil, ""
}

// Current returns the current algorithm, or nil.
func (r *Runner) Current() *algorithm.Algorithm {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// IsRunning reports whether the current algorithm is executing.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.IsRunning()
}

// CancelRunningAlgorithm cancels the current algorithm and waits for it.
//
// Description:
//
//	Requests cooperative cancellation, then waits up to the cancel timeout.
//	If the algorithm has not stopped by then it is detached and abandoned:
//	it keeps running until its next interruption point, but the runner no
//	longer relays it. Nothing is force-killed.
//
// Outputs:
//   - bool: True if the algorithm stopped within the timeout (or none was running).
func (r *Runner) CancelRunningAlgorithm() bool {
	r.mu.Lock()
	alg, h := r.current, r.handle
	r.mu.Unlock()
	if alg == nil || h == nil || !alg.IsRunning() {
		return true
	}

	alg.Cancel()
	if h.TryWait(r.timeout) {
		return true
	}

	r.logger.Warn("algorithm did not stop within cancel timeout; abandoning",
		slog.String("algorithm", alg.Name()),
		slog.Duration("timeout", r.timeout),
	)
	r.mu.Lock()
	if r.current == alg {
		r.detachLocked()
	}
	r.mu.Unlock()
	return false
}

// Wait blocks until the current algorithm finishes.
//
// Outputs:
//   - bool, error: The execution result; true, nil when nothing is current.
func (r *Runner) Wait() (bool, error) {
	r.mu.Lock()
	h := r.handle
	r.mu.Unlock()
	if h == nil {
		return true, nil
	}
	return h.Wait()
}
