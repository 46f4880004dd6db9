// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parallel runs data-parallel loops over independent indices.
//
// Loop bodies must only touch state owned by their index; results are
// collected per index and handed back for a single serial commit.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianReduce/services/reduce/cancel"
)

// Option configures a loop.
type Option func(*options)

type options struct {
	limit int
}

// WithLimit caps the number of concurrent bodies. Non-positive means GOMAXPROCS.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

func apply(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limit <= 0 {
		o.limit = runtime.GOMAXPROCS(0)
	}
	return o
}

// For calls fn for every index in [0, n).
//
// Description:
//
//	Bodies run concurrently up to the limit. The first error cancels the
//	loop context; indices not yet started are skipped. Cancellation of ctx,
//	or of the token it carries, stops the loop with a *cancel.CancelError.
//
// Outputs:
//   - error: The first body error or cancellation, nil otherwise.
func For(ctx context.Context, n int, fn func(ctx context.Context, i int) error, opts ...Option) error {
	if n <= 0 {
		return nil
	}
	o := apply(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limit)
	for i := range n {
		if err := cancel.Check(gctx); err != nil {
			break
		}
		g.Go(func() error {
			if err := cancel.Check(gctx); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return cancel.Check(ctx)
}

// Map calls fn for every index in [0, n) and returns the results in index order.
//
// Outputs:
//   - []T: One result per index; nil on error.
//   - error: As For.
func Map[T any](ctx context.Context, n int, fn func(ctx context.Context, i int) (T, error), opts ...Option) ([]T, error) {
	out := make([]T, max(n, 0))
	err := For(ctx, n, func(ctx context.Context, i int) error {
		v, err := fn(ctx, i)
		if err != nil {
			return err
		}
		out[i] = v
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
