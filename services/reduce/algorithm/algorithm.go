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
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/history"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/notify"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
)

// -----------------------------------------------------------------------------
// Algorithm
// -----------------------------------------------------------------------------

// Algorithm wraps an Implementation with the execution runtime.
//
// Description:
//
//	Algorithm owns the property manager, the state machine and the
//	notification center. Execute runs on the caller's goroutine;
//	ExecuteAsync runs on a new one. A second Execute while one is in
//	progress returns ErrAlreadyRunning.
//
// Thread Safety: Safe for concurrent use. Properties must not be set while
// the instance is running.
type Algorithm struct {
	impl   Implementation
	env    *Environment
	id     uuid.UUID
	props  *property.Manager
	center *notify.Center[NotificationKind, Notification]

	initMu  sync.Mutex
	running atomic.Bool

	mu               sync.RWMutex
	state            State
	baseLogger       *slog.Logger
	logger           *slog.Logger
	token            *cancel.Token
	execID           uuid.UUID
	execCount        int
	lastErr          error
	lastHistory      *history.AlgorithmHistory
	childHistories   []*history.AlgorithmHistory
	rethrow          bool
	lockMode         bool
	alwaysStoreInADS bool

	// child composition; fixed at creation
	parent       *Algorithm
	isChild      bool
	low, high    float64
	emitProgress bool

	progMu       sync.Mutex
	lastProgress float64
}

// New wraps impl. The result is Uninitialized; Execute initializes lazily.
//
// Inputs:
//   - impl: The implementation. Must not be shared with another Algorithm.
//   - env: Collaborators. Nil uses NewEnvironment().
func New(impl Implementation, env *Environment) *Algorithm {
	if env == nil {
		env = NewEnvironment()
	}
	a := &Algorithm{
		impl:  impl,
		env:   env,
		id:    uuid.New(),
		props: property.NewManager(),
		low:   0,
		high:  1,
	}
	a.baseLogger = scopedLogger(env.Logger, impl)
	a.logger = a.baseLogger
	a.center = notify.NewCenter[NotificationKind, Notification](
		notify.WithName(impl.Name()),
		notify.WithLogger(a.logger),
	)
	return a
}

// ID is unique per instance and stable across executions.
func (a *Algorithm) ID() uuid.UUID { return a.id }

// Name returns the implementation name.
func (a *Algorithm) Name() string { return a.impl.Name() }

// Version returns the implementation version.
func (a *Algorithm) Version() int { return a.impl.Version() }

// Category returns the implementation category.
func (a *Algorithm) Category() string { return a.impl.Category() }

// Summary returns the implementation summary, if it has one.
func (a *Algorithm) Summary() string {
	if s, ok := a.impl.(Summarizer); ok {
		return s.Summary()
	}
	return ""
}

// Implementation returns the wrapped implementation.
func (a *Algorithm) Implementation() Implementation { return a.impl }

// Environment returns the collaborators this instance runs against.
func (a *Algorithm) Environment() *Environment { return a.env }

// Properties returns the property manager.
func (a *Algorithm) Properties() *property.Manager { return a.props }

// Logger returns the instance logger.
func (a *Algorithm) Logger() *slog.Logger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.logger
}

// SetLogging disables (or re-enables) logging for this instance.
func (a *Algorithm) SetLogging(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if enabled {
		a.baseLogger = scopedLogger(a.env.Logger, a.impl)
	} else {
		a.baseLogger = slog.New(slog.DiscardHandler)
	}
	a.logger = a.baseLogger
}

func scopedLogger(l *slog.Logger, impl Implementation) *slog.Logger {
	return l.With(
		slog.String("component", "algorithm"),
		slog.String("algorithm", impl.Name()),
		slog.Int("version", impl.Version()),
	)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Initialize calls Init once. Later calls are no-ops.
//
// Outputs:
//   - error: The Init error wrapped with the algorithm name, or a
//     *kernel.RuntimeError if Init panicked.
func (a *Algorithm) Initialize() (err error) {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.State() != StateUninitialized {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &kernel.RuntimeError{Op: "initialize " + a.Name(), Message: fmt.Sprint(r)}
		}
	}()
	if err := a.impl.Init(a); err != nil {
		return fmt.Errorf("initialize %s: %w", a.Name(), err)
	}
	a.setState(StateInitialized)
	return nil
}

// IsInitialized reports whether Initialize has succeeded.
func (a *Algorithm) IsInitialized() bool {
	return a.State() != StateUninitialized
}

// State returns the lifecycle state.
func (a *Algorithm) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Algorithm) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// IsRunning reports whether an execution is in progress.
func (a *Algorithm) IsRunning() bool {
	return a.running.Load()
}

// IsExecuted reports whether the last execution succeeded.
func (a *Algorithm) IsExecuted() bool {
	return a.State() == StateFinished
}

// ExecCount is the number of executions started on this instance.
func (a *Algorithm) ExecCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.execCount
}

// LastError returns the error of the last failed execution, or nil.
func (a *Algorithm) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// History returns the record of the last successful execution, or nil.
func (a *Algorithm) History() *history.AlgorithmHistory {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastHistory
}

// -----------------------------------------------------------------------------
// Flags
// -----------------------------------------------------------------------------

// SetRethrows controls whether Execute returns exec errors. Children default to true.
func (a *Algorithm) SetRethrows(v bool) {
	a.mu.Lock()
	a.rethrow = v
	a.mu.Unlock()
}

// Rethrows reports the rethrow flag.
func (a *Algorithm) Rethrows() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rethrow
}

// SetLockMode makes Execute hold workspace locks for the duration of exec.
func (a *Algorithm) SetLockMode(v bool) {
	a.mu.Lock()
	a.lockMode = v
	a.mu.Unlock()
}

// SetAlwaysStoreInADS makes a child store its outputs in the data service
// and stamp their histories as a top-level run would.
func (a *Algorithm) SetAlwaysStoreInADS(v bool) {
	a.mu.Lock()
	a.alwaysStoreInADS = v
	a.mu.Unlock()
}

// IsChild reports whether this instance was created by another algorithm.
func (a *Algorithm) IsChild() bool { return a.isChild }

// Parent returns the creating algorithm, or nil.
func (a *Algorithm) Parent() *Algorithm { return a.parent }

// ProgressRange returns the [low, high] sub-range of the parent this instance reports into.
func (a *Algorithm) ProgressRange() (low, high float64) { return a.low, a.high }

// -----------------------------------------------------------------------------
// Properties
// -----------------------------------------------------------------------------

// DeclareProperty adds p to the manager.
func (a *Algorithm) DeclareProperty(p property.Property) error {
	return a.props.Declare(p)
}

// Property returns the named property.
func (a *Algorithm) Property(name string) (property.Property, error) {
	return a.props.Property(name)
}

// SetProperty sets a typed value or, for workspace properties, a Workspace.
func (a *Algorithm) SetProperty(name string, value any) error {
	return a.props.SetProperty(name, value)
}

// SetPropertyValue sets a property from its string form.
func (a *Algorithm) SetPropertyValue(name, value string) error {
	return a.props.SetPropertyValue(name, value)
}

// PropertyValue returns the string form of a property.
func (a *Algorithm) PropertyValue(name string) (string, error) {
	return a.props.PropertyValue(name)
}

// SetProperties applies name→string pairs in declaration order.
func (a *Algorithm) SetProperties(values map[string]string) error {
	return a.props.SetProperties(values)
}

// ValidateProperties returns name→message for every invalid property.
func (a *Algorithm) ValidateProperties() map[string]string {
	return a.props.ValidateProperties()
}

// Get returns the typed value of a declared property.
func Get[T any](a *Algorithm, name string) (T, error) {
	return property.Get[T](a.props, name)
}

// Set sets the typed value of a declared property.
func Set[T any](a *Algorithm, name string, v T) error {
	return property.Set(a.props, name, v)
}

// Declare declares a typed property on a.
func Declare[T any](a *Algorithm, name string, def T, opts ...property.Option[T]) (*property.Value[T], error) {
	return property.Declare(a.props, name, def, opts...)
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// Subscribe registers handler for the given kinds (all when none).
//
// Handlers run on the executing goroutine and must not report progress on
// this algorithm.
func (a *Algorithm) Subscribe(handler func(Notification), kinds ...NotificationKind) string {
	return a.center.Subscribe(handler, kinds...)
}

// Observe registers the callbacks of o.
func (a *Algorithm) Observe(o Observer) string {
	return a.center.Subscribe(o.dispatch)
}

// Unsubscribe removes a subscription.
func (a *Algorithm) Unsubscribe(id string) bool {
	return a.center.Unsubscribe(id)
}

func (a *Algorithm) post(kind NotificationKind, mutate func(*Notification)) {
	a.mu.RLock()
	n := Notification{
		Type:        kind,
		Algorithm:   a.impl.Name(),
		Version:     a.impl.Version(),
		AlgorithmID: a.id,
		ExecID:      a.execID,
		IsChild:     a.isChild,
		Time:        timeNow(),
	}
	a.mu.RUnlock()
	if mutate != nil {
		mutate(&n)
	}
	a.center.Post(n)
}

// -----------------------------------------------------------------------------
// Cancellation
// -----------------------------------------------------------------------------

// Cancel requests cooperative cancellation of the running execution.
//
// Children share their parent's token, so cancelling either stops both.
//
// Outputs:
//   - bool: True if a running execution was signalled.
func (a *Algorithm) Cancel() bool {
	return a.CancelWithReason(cancel.UserReason("cancel requested"))
}

// CancelWithReason is Cancel with an explicit reason.
func (a *Algorithm) CancelWithReason(reason cancel.CancelReason) bool {
	t := a.currentToken()
	if t == nil {
		return false
	}
	if reason.Component == "" {
		reason.Component = a.Name()
	}
	return t.Cancel(reason)
}

// IsCancelled reports whether cancellation was requested for the current execution.
func (a *Algorithm) IsCancelled() bool {
	t := a.currentToken()
	return t != nil && t.IsCancelled()
}

func (a *Algorithm) currentToken() *cancel.Token {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}
