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
	"time"
)

// Handle is the result of ExecuteAsync.
//
// Thread Safety: Safe for concurrent use.
type Handle struct {
	alg  *Algorithm
	done chan struct{}
	ok   bool
	err  error
}

// ExecuteAsync runs Execute on a new goroutine.
//
// Description:
//
//	The instance is claimed and its cancellation token created before this
//	returns, so Cancel on the algorithm (or CancelRunningAlgorithm on a
//	runner) immediately reaches the new execution. Notifications are
//	delivered on the worker goroutine.
//
// Outputs:
//   - *Handle: Join point for the execution.
//   - error: ErrAlreadyRunning, ErrNilContext or an Initialize error.
func (a *Algorithm) ExecuteAsync(ctx context.Context) (*Handle, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	r, err := a.begin()
	if err != nil {
		return nil, err
	}

	h := &Handle{alg: a, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.ok, h.err = a.execute(ctx, r)
	}()
	return h, nil
}

// Algorithm returns the executing algorithm.
func (h *Handle) Algorithm() *Algorithm { return h.alg }

// Done is closed when the execution ends.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Available reports whether the result is ready.
func (h *Handle) Available() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the execution ends and returns Execute's result.
func (h *Handle) Wait() (bool, error) {
	<-h.done
	return h.ok, h.err
}

// WaitContext is Wait bounded by ctx.
func (h *Handle) WaitContext(ctx context.Context) (bool, error) {
	select {
	case <-h.done:
		return h.ok, h.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// TryWait waits up to timeout and reports whether the execution ended.
func (h *Handle) TryWait(timeout time.Duration) bool {
	if timeout <= 0 {
		return h.Available()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// Result returns Execute's result. Only meaningful once Available is true.
func (h *Handle) Result() (bool, error) {
	if !h.Available() {
		return false, nil
	}
	return h.ok, h.err
}
