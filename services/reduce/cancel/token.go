// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cancel provides cooperative cancellation for algorithm execution.
//
// # Overview
//
// A Token is a polled flag shared by an algorithm and every child algorithm
// it spawns. Cancelling the token never interrupts a goroutine: running code
// observes the request at its next interruption point and unwinds by
// returning a *CancelError.
//
//	tok := cancel.NewToken("Scale")
//	for i := range spectra {
//	    if err := tok.Check(); err != nil {
//	        return err
//	    }
//	    // work...
//	}
//
// # Context bridge
//
// Code that only receives a context.Context can still honour the token via
// WithToken / Check, and Bind derives a context that is cancelled when the
// token is.
//
// # Thread Safety
//
// All exported types in this package are safe for concurrent use.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Token is a cooperative cancellation flag.
//
// Thread Safety: Safe for concurrent use.
type Token struct {
	id    string
	state atomic.Int32

	reason   *CancelReason
	reasonMu sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once
}

// NewToken creates a running token.
//
// Inputs:
//   - id: Identifier used in logs (usually the algorithm name or execution ID).
//
// Outputs:
//   - *Token: The token. Never nil.
func NewToken(id string) *Token {
	t := &Token{
		id:   id,
		done: make(chan struct{}),
	}
	t.state.Store(int32(StateRunning))
	return t
}

// ID returns the identifier supplied at construction.
func (t *Token) ID() string {
	return t.id
}

// State returns the current state.
func (t *Token) State() State {
	return State(t.state.Load())
}

// Cancel requests cancellation.
//
// Description:
//
//	Only the first call on a running token has an effect; it records the
//	reason and closes Done. Later calls, or calls after MarkDone, return false.
//
// Inputs:
//   - reason: Why cancellation was requested. A zero Timestamp is filled in.
//
// Outputs:
//   - bool: True if this call transitioned the token.
func (t *Token) Cancel(reason CancelReason) bool {
	if !t.state.CompareAndSwap(int32(StateRunning), int32(StateCancelling)) {
		return false
	}

	t.reasonMu.Lock()
	if reason.Timestamp == 0 {
		reason.Timestamp = time.Now().UnixMilli()
	}
	t.reason = &reason
	t.reasonMu.Unlock()

	t.doneOnce.Do(func() { close(t.done) })
	return true
}

// IsCancelled reports whether cancellation was requested.
func (t *Token) IsCancelled() bool {
	s := t.State()
	return s == StateCancelling || s == StateCancelled
}

// Done returns a channel closed when cancellation is requested.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Reason returns the cancel reason, if any.
func (t *Token) Reason() (CancelReason, bool) {
	t.reasonMu.RLock()
	defer t.reasonMu.RUnlock()
	if t.reason == nil {
		return CancelReason{}, false
	}
	return *t.reason, true
}

// Check is the interruption point.
//
// Outputs:
//   - error: *CancelError if cancellation was requested, nil otherwise.
func (t *Token) Check() error {
	if !t.IsCancelled() {
		return nil
	}
	reason, _ := t.Reason()
	return &CancelError{Reason: reason}
}

// MarkDone records normal completion; a later Cancel is ignored.
func (t *Token) MarkDone() {
	t.state.CompareAndSwap(int32(StateRunning), int32(StateDone))
}

// MarkCancelled records that the worker observed cancellation and stopped.
func (t *Token) MarkCancelled() {
	t.state.CompareAndSwap(int32(StateCancelling), int32(StateCancelled))
}

// Bind derives a context that is cancelled when either parent or the token is.
//
// Outputs:
//   - context.Context: Derived context carrying the token (see FromContext).
//   - context.CancelFunc: Must be called to release the watcher goroutine.
func (t *Token) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancelFn := context.WithCancel(WithToken(parent, t))
	go func() {
		select {
		case <-t.done:
			cancelFn()
		case <-ctx.Done():
		}
	}()
	return ctx, cancelFn
}

// -----------------------------------------------------------------------------
// Context helpers
// -----------------------------------------------------------------------------

type tokenKey struct{}

// WithToken returns a context carrying the token.
func WithToken(ctx context.Context, t *Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, t)
}

// FromContext returns the token carried by ctx, or nil.
func FromContext(ctx context.Context) *Token {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(tokenKey{}).(*Token)
	return t
}

// Check is the interruption point for code that only holds a context.
//
// Description:
//
//	Returns the token's *CancelError when the carried token is cancelled, and a
//	*CancelError of type CancelTimeout or CancelParent when ctx itself is done.
func Check(ctx context.Context) error {
	if t := FromContext(ctx); t != nil {
		if err := t.Check(); err != nil {
			return err
		}
	}
	if ctx == nil {
		return nil
	}
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case err == context.DeadlineExceeded:
		return &CancelError{Reason: CancelReason{Type: CancelTimeout, Message: err.Error(), Timestamp: time.Now().UnixMilli()}}
	default:
		return &CancelError{Reason: CancelReason{Type: CancelParent, Message: err.Error(), Timestamp: time.Now().UnixMilli()}}
	}
}
