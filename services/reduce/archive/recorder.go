// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianReduce/services/reduce/dataservice"
	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
)

// DefaultQueueSize bounds the Recorder backlog.
const DefaultQueueSize = 256

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Logger *slog.Logger

	// QueueSize bounds pending writes; notifications block when full.
	QueueSize int

	// IncludeHidden archives names under the hidden prefix too.
	IncludeHidden bool

	// DropDeleted removes entries whose workspace was deleted instead of
	// marking them Deleted.
	DropDeleted bool

	// WriteTimeout bounds each store call. Zero means no bound.
	WriteTimeout time.Duration
}

type recordJob struct {
	kind    dataservice.Kind
	name    string
	newName string
	entry   Entry
}

// Recorder mirrors data-service changes into a Store.
//
// Description:
//
//	Add and AfterReplace save a snapshot of the workspace's history.
//	Rename moves the entry. PostDelete marks it Deleted (or removes it
//	with DropDeleted). Snapshots are taken on the notifying goroutine and
//	written by a single background worker, so writes happen in
//	notification order.
//
// Thread Safety: Safe for concurrent use.
type Recorder struct {
	store  Store
	ads    *dataservice.AnalysisDataService
	opts   RecorderOptions
	logger *slog.Logger
	subID  string

	mu     sync.RWMutex
	closed bool
	queue  chan recordJob
	done   chan struct{}

	closeOnce sync.Once
}

// NewRecorder subscribes to ads and starts the writer.
func NewRecorder(store Store, ads *dataservice.AnalysisDataService, opts RecorderOptions) *Recorder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	r := &Recorder{
		store:  store,
		ads:    ads,
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "archive_recorder")),
		queue:  make(chan recordJob, opts.QueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	r.subID = ads.Subscribe(r.handle,
		dataservice.KindAdd,
		dataservice.KindAfterReplace,
		dataservice.KindRename,
		dataservice.KindPostDelete,
	)
	return r
}

// Snapshot saves every current entry. Used to seed a fresh archive.
func (r *Recorder) Snapshot(ctx context.Context) error {
	var errs []error
	now := time.Now()
	for _, name := range r.ads.Names(r.opts.IncludeHidden) {
		ws, err := r.ads.Retrieve(name)
		if err != nil {
			continue
		}
		if err := r.store.Save(ctx, EntryFor(name, ws, now)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) handle(n dataservice.WorkspaceNotification) {
	if !r.opts.IncludeHidden && r.ads.IsHidden(n.Name) && (n.Type != dataservice.KindRename || r.ads.IsHidden(n.NewName)) {
		return
	}
	job := recordJob{kind: n.Type, name: n.Name, newName: n.NewName}
	switch n.Type {
	case dataservice.KindRename:
		job.entry = EntryFor(n.NewName, n.Object, time.Now())
	default:
		job.entry = EntryFor(n.Name, n.Object, time.Now())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.queue <- job
}

func (r *Recorder) run() {
	defer close(r.done)
	for job := range r.queue {
		r.apply(job)
	}
}

func (r *Recorder) apply(job recordJob) {
	ctx := context.Background()
	if r.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.WriteTimeout)
		defer cancel()
	}

	var err error
	switch job.kind {
	case dataservice.KindAdd, dataservice.KindAfterReplace:
		err = r.store.Save(ctx, job.entry)

	case dataservice.KindRename:
		if err = r.store.Save(ctx, job.entry); err == nil {
			err = ignoreNotFound(r.store.Delete(ctx, job.name))
		}

	case dataservice.KindPostDelete:
		if r.opts.DropDeleted {
			err = ignoreNotFound(r.store.Delete(ctx, job.name))
		} else {
			job.entry.Deleted = true
			err = r.store.Save(ctx, job.entry)
		}
	}

	if err != nil {
		r.logger.Warn("archive write failed",
			slog.String("op", job.kind.String()),
			slog.String("name", job.name),
			slog.String("error", err.Error()),
		)
	}
}

// Close unsubscribes, drains queued writes and returns. It does not close
// the Store. Safe to call more than once.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.ads.Unsubscribe(r.subID)
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}

func ignoreNotFound(err error) error {
	if errors.Is(err, kernel.ErrNotFound) {
		return nil
	}
	return err
}
