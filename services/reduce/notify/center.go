// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package notify provides a typed publish/subscribe notification center.
//
// Algorithms use it for Started/Progress/Error/Finished, the data service for
// Add/Replace/Delete/Rename. Each producer defines its own notification type
// carrying a Kind, and subscribers may restrict delivery to a set of kinds.
//
// Delivery is synchronous on the posting goroutine, in subscription order.
// Handler panics are recovered and logged so a faulty observer never breaks
// the producer or starves the remaining observers.
package notify

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Kinded is implemented by every notification type.
type Kinded[K comparable] interface {
	Kind() K
}

// Handler processes one notification.
type Handler[N any] func(n N)

// Filter decides whether a notification is delivered to a subscriber.
type Filter[N any] func(n N) bool

type subscription[K comparable, N any] struct {
	id      string
	handler Handler[N]
	filter  Filter[N]
	kinds   []K
}

// Center broadcasts notifications to subscribers.
//
// Thread Safety: Center is safe for concurrent use. Handlers may subscribe or
// unsubscribe from within a delivery; the change applies to the next Post.
type Center[K comparable, N Kinded[K]] struct {
	mu     sync.RWMutex
	subs   []*subscription[K, N]
	name   string
	logger *slog.Logger

	recent     []N
	bufferSize int
}

// Option configures a Center.
type Option func(*options)

type options struct {
	name       string
	logger     *slog.Logger
	bufferSize int
}

// WithName sets the name used in log records.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used when a handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBuffer keeps the last size notifications for Recent.
func WithBuffer(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// NewCenter creates an empty notification center.
func NewCenter[K comparable, N Kinded[K]](opts ...Option) *Center[K, N] {
	o := options{name: "notify"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Center[K, N]{
		name:       o.name,
		logger:     o.logger.With(slog.String("component", o.name)),
		bufferSize: o.bufferSize,
	}
}

// Subscribe registers a handler.
//
// Inputs:
//   - handler: Called for each matching notification.
//   - kinds: Kinds to receive (none = all kinds).
//
// Outputs:
//   - string: Subscription ID for Unsubscribe.
func (c *Center[K, N]) Subscribe(handler Handler[N], kinds ...K) string {
	return c.SubscribeWithFilter(handler, nil, kinds...)
}

// SubscribeWithFilter registers a handler with an additional predicate.
func (c *Center[K, N]) SubscribeWithFilter(handler Handler[N], filter Filter[N], kinds ...K) string {
	sub := &subscription[K, N]{
		id:      uuid.NewString(),
		handler: handler,
		filter:  filter,
		kinds:   slices.Clone(kinds),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, sub)
	return sub.id
}

// Unsubscribe removes a subscription.
//
// Outputs:
//   - bool: True if the subscription existed.
func (c *Center[K, N]) Unsubscribe(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subs {
		if sub.id == id {
			c.subs = slices.Delete(slices.Clone(c.subs), i, i+1)
			return true
		}
	}
	return false
}

// Len returns the number of subscriptions.
func (c *Center[K, N]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Post delivers n to every matching subscriber on the calling goroutine.
//
// Description:
//
//	The subscriber list is snapshotted before delivery, so handlers run
//	without the center's lock held. Two Posts from one goroutine are
//	observed in that order by every subscriber; ordering across goroutines
//	is the producer's responsibility.
func (c *Center[K, N]) Post(n N) {
	c.mu.Lock()
	subs := c.subs
	if c.bufferSize > 0 {
		if len(c.recent) >= c.bufferSize {
			c.recent = c.recent[1:]
		}
		c.recent = append(c.recent, n)
	}
	c.mu.Unlock()

	kind := n.Kind()
	for _, sub := range subs {
		if len(sub.kinds) > 0 && !slices.Contains(sub.kinds, kind) {
			continue
		}
		if sub.filter != nil && !sub.filter(n) {
			continue
		}
		c.safeInvoke(sub, n, kind)
	}
}

// Recent returns a copy of the buffered notifications, oldest first.
func (c *Center[K, N]) Recent() []N {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.recent)
}

func (c *Center[K, N]) safeInvoke(sub *subscription[K, N], n N, kind K) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("notification handler panicked",
				slog.Any("kind", kind),
				slog.String("subscription_id", sub.id),
				slog.Any("panic", r),
			)
		}
	}()
	sub.handler(n)
}
