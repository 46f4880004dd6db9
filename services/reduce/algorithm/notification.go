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
	"time"

	"github.com/google/uuid"
)

// NotificationKind identifies a lifecycle notification.
type NotificationKind int

const (
	// KindStarted is posted once validation passed, before exec.
	KindStarted NotificationKind = iota

	// KindProgress carries a fraction in [0,1] and an optional message.
	KindProgress

	// KindError carries the failure message. Always followed by KindFinished.
	KindError

	// KindFinished ends every execution; Success reports the outcome.
	KindFinished
)

// String returns the kind name.
func (k NotificationKind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindProgress:
		return "progress"
	case KindError:
		return "error"
	case KindFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Notification is posted by an Algorithm to its subscribers.
//
// Delivery happens on the goroutine running the execution, in the order
// Started, Progress*, Error?, Finished.
type Notification struct {
	Type        NotificationKind
	Algorithm   string
	Version     int
	AlgorithmID uuid.UUID
	ExecID      uuid.UUID
	IsChild     bool
	Progress    float64
	Message     string
	Err         error
	Success     bool
	Time        time.Time
}

// Kind implements notify.Kinded.
func (n Notification) Kind() NotificationKind {
	return n.Type
}

// Observer dispatches notifications to per-kind callbacks. Nil callbacks are skipped.
type Observer struct {
	OnStarted  func(n Notification)
	OnProgress func(n Notification)
	OnError    func(n Notification)
	OnFinished func(n Notification)
}

func (o Observer) dispatch(n Notification) {
	var fn func(Notification)
	switch n.Type {
	case KindStarted:
		fn = o.OnStarted
	case KindProgress:
		fn = o.OnProgress
	case KindError:
		fn = o.OnError
	case KindFinished:
		fn = o.OnFinished
	}
	if fn != nil {
		fn(n)
	}
}
