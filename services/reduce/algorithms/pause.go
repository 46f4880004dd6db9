// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package algorithms

import (
	"context"
	"time"

	"github.com/AleutianAI/AleutianReduce/services/reduce/algorithm"
	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/property"
)

// pauseTick is the interval between interruption checks.
const pauseTick = 50 * time.Millisecond

// Pause waits for Duration seconds, reporting progress. A non-positive
// Duration waits until cancelled.
type Pause struct{}

// NewPause is the factory constructor.
func NewPause() algorithm.Implementation { return &Pause{} }

func (*Pause) Name() string     { return "Pause" }
func (*Pause) Version() int     { return 1 }
func (*Pause) Category() string { return CategoryDevelopment }

func (*Pause) Init(a *algorithm.Algorithm) error {
	_, err := algorithm.Declare(a, "Duration", 1.0,
		property.WithDoc[float64]("Seconds to wait; zero or negative waits until cancelled"))
	return err
}

func (*Pause) Exec(ctx context.Context, a *algorithm.Algorithm) error {
	secs, _ := algorithm.Get[float64](a, "Duration")
	forever := secs <= 0
	total := time.Duration(secs * float64(time.Second))

	var tokenDone <-chan struct{}
	if t := cancel.FromContext(ctx); t != nil {
		tokenDone = t.Done()
	}

	ticker := time.NewTicker(pauseTick)
	defer ticker.Stop()
	start := time.Now()

	for {
		if err := a.InterruptionPoint(ctx); err != nil {
			return err
		}
		if !forever {
			elapsed := time.Since(start)
			if elapsed >= total {
				a.Progress(1, "done")
				return nil
			}
			a.Progress(float64(elapsed)/float64(total), "pausing")
		}
		select {
		case <-ctx.Done():
		case <-tokenDone:
		case <-ticker.C:
		}
	}
}
