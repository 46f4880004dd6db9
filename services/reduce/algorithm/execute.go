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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/telemetry"
)

var timeNow = time.Now

// run is one execution's bookkeeping, prepared synchronously by begin.
type run struct {
	id    uuid.UUID
	token *cancel.Token
	owner bool
}

// Execute validates properties and runs exec on the calling goroutine.
//
// Description:
//
//	Initializes lazily, validates every property (and cross-property
//	constraints), posts Started, runs exec, stamps history on output
//	workspaces, stores top-level outputs in the data service and posts
//	Finished(true). A failure posts Error then Finished(false).
//
// Inputs:
//   - ctx: Carries deadlines and the cancellation token. Must not be nil.
//
// Outputs:
//   - bool: True on success.
//   - error: *ValidationError when validation failed, ErrAlreadyRunning,
//     or the exec error when Rethrows is set. A swallowed exec error is
//     available from LastError.
//
// Thread Safety: One execution at a time per instance.
func (a *Algorithm) Execute(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	r, err := a.begin()
	if err != nil {
		return false, err
	}
	return a.execute(ctx, r)
}

// begin claims the instance and prepares the run before any goroutine starts.
func (a *Algorithm) begin() (*run, error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%s: %w", a.Name(), ErrAlreadyRunning)
	}
	if err := a.Initialize(); err != nil {
		a.running.Store(false)
		return nil, err
	}

	r := &run{id: uuid.New()}
	a.mu.Lock()
	if a.isChild && a.parent != nil {
		if t := a.parent.currentToken(); t != nil && !t.State().IsTerminal() {
			r.token = t
		}
	}
	if r.token == nil {
		r.token = cancel.NewToken(r.id.String())
		r.owner = true
	}
	a.token = r.token
	a.execID = r.id
	a.execCount++
	a.lastErr = nil
	a.childHistories = nil
	a.logger = a.baseLogger.With(slog.String("exec_id", r.id.String()))
	a.mu.Unlock()

	a.progMu.Lock()
	a.lastProgress = 0
	a.progMu.Unlock()
	return r, nil
}

func (a *Algorithm) execute(ctx context.Context, r *run) (ok bool, err error) {
	defer a.running.Store(false)

	ctx = cancel.WithToken(ctx, r.token)
	ctx, span := tracer.Start(ctx, "algorithm.Execute",
		trace.WithAttributes(telemetry.ExecutionAttributes(a.Name(), a.Version(), a.isChild, r.id.String())...),
	)
	defer span.End()

	m := metrics()
	attrs := metric.WithAttributes(
		attribute.String("algorithm", a.Name()),
		attribute.Bool("child", a.isChild),
	)
	logger := telemetry.LoggerWithTrace(ctx, a.Logger())

	if errs := a.validate(); len(errs) > 0 {
		verr := &ValidationError{Algorithm: a.Name(), Errors: errs}
		logger.Error("property validation failed", slog.String("error", verr.Error()))
		telemetry.RecordError(span, verr)
		if m != nil {
			m.ValidationFailuresTotal.Add(ctx, 1, attrs)
			m.ExecutionsTotal.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("status", "invalid")))
		}
		a.finishFailed(r, verr)
		return false, verr
	}

	a.setState(StateRunning)
	start := timeNow()
	a.post(KindStarted, nil)
	logger.Debug("execution started")
	if m != nil {
		m.ActiveExecutions.Add(ctx, 1, attrs)
		defer m.ActiveExecutions.Add(ctx, -1, attrs)
	}

	unlock := a.acquireLocks()
	err = a.safeExec(ctx)
	unlock()
	duration := timeNow().Sub(start)

	if err == nil {
		err = a.complete(start, duration)
	}
	if m != nil {
		m.ExecutionDuration.Record(ctx, duration.Seconds(), attrs)
	}

	if err != nil {
		status := "failed"
		if cancel.IsCancel(err) {
			status = "cancelled"
			logger.Warn("execution cancelled",
				slog.Duration("duration", duration),
				slog.String("reason", err.Error()),
			)
			if m != nil {
				m.CancellationsTotal.Add(ctx, 1, attrs)
			}
		} else {
			logger.Error("execution failed",
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
			)
		}
		telemetry.RecordError(span, err)
		if m != nil {
			m.ExecutionsTotal.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("status", status)))
		}
		a.finishFailed(r, err)
		if a.Rethrows() {
			return false, err
		}
		return false, nil
	}

	a.setState(StateFinished)
	if r.owner {
		r.token.MarkDone()
	}
	telemetry.SetSpanOK(span, telemetry.AttrDuration.Int64(duration.Milliseconds()))
	if m != nil {
		m.ExecutionsTotal.Add(ctx, 1, attrs, metric.WithAttributes(attribute.String("status", "success")))
	}
	logger.Info("execution finished", slog.Duration("duration", duration))
	a.post(KindFinished, func(n *Notification) { n.Success = true })
	return true, nil
}

// finishFailed moves to Failed and posts Error then Finished(false).
func (a *Algorithm) finishFailed(r *run, err error) {
	a.mu.Lock()
	a.state = StateFailed
	a.lastErr = err
	a.mu.Unlock()

	if r.owner {
		if cancel.IsCancel(err) {
			r.token.MarkCancelled()
		} else {
			r.token.MarkDone()
		}
	}
	a.post(KindError, func(n *Notification) {
		n.Err = err
		n.Message = err.Error()
	})
	a.post(KindFinished, func(n *Notification) { n.Success = false })
}

// validate is the admission gate: per-property checks, then cross-property ones.
func (a *Algorithm) validate() map[string]string {
	errs := a.props.ValidateProperties()
	if len(errs) > 0 {
		return errs
	}
	if cv, ok := a.impl.(CrossValidator); ok {
		for name, msg := range cv.ValidateInputs(a) {
			if msg != "" {
				errs[name] = msg
			}
		}
	}
	return errs
}

// safeExec runs exec and converts a panic to *kernel.RuntimeError.
func (a *Algorithm) safeExec(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &kernel.RuntimeError{Op: "exec " + a.Name(), Message: fmt.Sprint(r)}
		}
	}()
	return a.impl.Exec(ctx, a)
}

// InterruptionPoint returns a *cancel.CancelError once cancellation was
// requested or ctx is done. Exec implementations call it between units of work.
func (a *Algorithm) InterruptionPoint(ctx context.Context) error {
	if t := a.currentToken(); t != nil {
		if err := t.Check(); err != nil {
			return err
		}
	}
	return cancel.Check(ctx)
}
