// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataservice provides a name-addressed, thread-safe registry of
// shared objects with lifecycle notifications.
//
// # Locking
//
// Two locks are involved. opMu serializes every mutation together with the
// notifications it fires, so each mutation produces its notifications as
// one uninterrupted sequence and observers see them in completion order.
// mu guards the name table itself and is never held while a notification
// is delivered, so observers may call Retrieve, Names or DoesExist.
//
// Observers must NOT call a mutating method synchronously from a handler;
// doing so deadlocks on opMu. Hand such work to another goroutine.
//
// Objects are returned by reference and are not locked by the service.
package dataservice

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianReduce/services/reduce/kernel"
	"github.com/AleutianAI/AleutianReduce/services/reduce/notify"
)

// ErrNilObject is returned when a nil object is stored.
var ErrNilObject = errors.New("object must not be nil")

// Defaults applied when Options leaves a field empty.
const (
	DefaultIllegalCharacters = " +-/*\\%<>&|^~=!@()[]{},:.`$'\"?;"
	DefaultHiddenPrefix      = "__"
)

// Options configures a DataService.
type Options struct {
	// Name labels logs, metrics and notifications.
	Name string

	// IllegalCharacters may not appear in names. Nil selects
	// DefaultIllegalCharacters; an empty non-nil string allows everything.
	IllegalCharacters *string

	// CaseSensitive selects case-sensitive name lookup. Fixed at construction.
	CaseSensitive bool

	// HiddenPrefix marks names excluded from listings by default. Nil
	// selects DefaultHiddenPrefix.
	HiddenPrefix *string

	Logger *slog.Logger
}

type entry[T any] struct {
	name string
	obj  T
}

// DataService is a generic name→object registry.
//
// Thread Safety: Safe for concurrent use; see the package documentation.
type DataService[T any] struct {
	name          string
	caseSensitive bool
	logger        *slog.Logger
	center        *notify.Center[Kind, Notification[T]]

	opMu sync.Mutex

	mu           sync.RWMutex
	entries      map[string]entry[T]
	illegal      string
	hiddenPrefix string

	// hooks run under opMu; set by specializations in this package.
	validateHook func(name string, obj T) error
	removedHook  func(name string)
	renamedHook  func(oldName, newName string)
}

// New creates an empty data service.
func New[T any](opts Options) *DataService[T] {
	if opts.Name == "" {
		opts.Name = "DataService"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	illegal := DefaultIllegalCharacters
	if opts.IllegalCharacters != nil {
		illegal = *opts.IllegalCharacters
	}
	hidden := DefaultHiddenPrefix
	if opts.HiddenPrefix != nil {
		hidden = *opts.HiddenPrefix
	}
	logger := opts.Logger.With(slog.String("component", "dataservice"), slog.String("service", opts.Name))
	return &DataService[T]{
		name:          opts.Name,
		caseSensitive: opts.CaseSensitive,
		logger:        logger,
		center:        notify.NewCenter[Kind, Notification[T]](notify.WithName(opts.Name), notify.WithLogger(logger)),
		entries:       make(map[string]entry[T]),
		illegal:       illegal,
		hiddenPrefix:  hidden,
	}
}

// Name returns the service name.
func (s *DataService[T]) Name() string { return s.name }

// Logger returns the service-scoped logger.
func (s *DataService[T]) Logger() *slog.Logger { return s.logger }

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// SetIllegalCharacters replaces the illegal character set. Existing entries are kept.
func (s *DataService[T]) SetIllegalCharacters(chars string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.illegal = chars
}

// IllegalCharacters returns the illegal character set.
func (s *DataService[T]) IllegalCharacters() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.illegal
}

// SetHiddenPrefix replaces the hidden-name prefix. Empty disables hiding.
func (s *DataService[T]) SetHiddenPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hiddenPrefix = prefix
}

// IsHidden reports whether name carries the hidden prefix.
func (s *DataService[T]) IsHidden(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHiddenLocked(name)
}

func (s *DataService[T]) isHiddenLocked(name string) bool {
	return s.hiddenPrefix != "" && strings.HasPrefix(name, s.hiddenPrefix)
}

func (s *DataService[T]) key(name string) string {
	if s.caseSensitive {
		return name
	}
	return strings.ToLower(name)
}

// CheckName validates a prospective name against the current rules.
func (s *DataService[T]) CheckName(name string) error {
	if strings.TrimSpace(name) == "" {
		return kernel.InvalidName("workspace", name, "name must not be empty")
	}
	s.mu.RLock()
	illegal := s.illegal
	s.mu.RUnlock()
	if i := strings.IndexAny(name, illegal); i >= 0 {
		return kernel.InvalidName("workspace", name, fmt.Sprintf("contains illegal character %q", name[i]))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

// Subscribe registers an observer for the given kinds (none = all).
func (s *DataService[T]) Subscribe(handler func(Notification[T]), kinds ...Kind) string {
	return s.center.Subscribe(handler, kinds...)
}

// Unsubscribe removes an observer.
func (s *DataService[T]) Unsubscribe(id string) bool {
	return s.center.Unsubscribe(id)
}

func (s *DataService[T]) post(n Notification[T]) {
	n.Service = s.name
	s.center.Post(n)
}

// -----------------------------------------------------------------------------
// Mutations
// -----------------------------------------------------------------------------

// Add stores obj under a new name.
//
// Outputs:
//   - error: ErrInvalidName for an empty or illegal name, ErrDuplicateName
//     when the name is taken, ErrNilObject for a nil object.
func (s *DataService[T]) Add(name string, obj T) (err error) {
	defer func() { recordOp(s.name, "add", err) }()
	if err := s.checkObject(name, obj); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.runValidateHook(name, obj); err != nil {
		return err
	}

	s.mu.Lock()
	k := s.key(name)
	if _, exists := s.entries[k]; exists {
		s.mu.Unlock()
		return kernel.DuplicateName("workspace", name)
	}
	s.entries[k] = entry[T]{name: name, obj: obj}
	s.updateGaugeLocked()
	s.mu.Unlock()

	s.logger.Debug("added", slog.String("name", name))
	s.post(Notification[T]{Type: KindAdd, Name: name, Object: obj})
	return nil
}

// AddOrReplace stores obj, replacing any existing entry.
//
// Description:
//
//	A new name behaves like Add. An existing name fires BeforeReplace while
//	the old object is still retrievable, swaps, then fires AfterReplace.
func (s *DataService[T]) AddOrReplace(name string, obj T) (err error) {
	defer func() { recordOp(s.name, "add_or_replace", err) }()
	if err := s.checkObject(name, obj); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.runValidateHook(name, obj); err != nil {
		return err
	}

	k := s.key(name)
	s.mu.RLock()
	old, exists := s.entries[k]
	s.mu.RUnlock()

	if !exists {
		s.mu.Lock()
		s.entries[k] = entry[T]{name: name, obj: obj}
		s.updateGaugeLocked()
		s.mu.Unlock()
		s.post(Notification[T]{Type: KindAdd, Name: name, Object: obj})
		return nil
	}

	s.post(Notification[T]{Type: KindBeforeReplace, Name: old.name, Object: old.obj, Replacement: obj})

	s.mu.Lock()
	s.entries[k] = entry[T]{name: old.name, obj: obj}
	s.mu.Unlock()

	s.logger.Debug("replaced", slog.String("name", old.name))
	s.post(Notification[T]{Type: KindAfterReplace, Name: old.name, Object: obj})
	return nil
}

// Remove deletes an entry, firing PreDelete then PostDelete.
func (s *DataService[T]) Remove(name string) (err error) {
	defer func() { recordOp(s.name, "remove", err) }()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.removeLocked(name)
}

func (s *DataService[T]) removeLocked(name string) error {
	k := s.key(name)
	s.mu.RLock()
	e, exists := s.entries[k]
	s.mu.RUnlock()
	if !exists {
		return kernel.NotFound("workspace", name)
	}

	s.post(Notification[T]{Type: KindPreDelete, Name: e.name, Object: e.obj})

	s.mu.Lock()
	delete(s.entries, k)
	s.updateGaugeLocked()
	s.mu.Unlock()

	if s.removedHook != nil {
		s.removedHook(e.name)
	}

	s.logger.Debug("removed", slog.String("name", e.name))
	s.post(Notification[T]{Type: KindPostDelete, Name: e.name, Object: e.obj})
	return nil
}

// Rename moves an entry to newName.
//
// Outputs:
//   - error: ErrNotFound if oldName is absent, ErrDuplicateName if newName is
//     taken by another entry, ErrInvalidName if newName is illegal.
func (s *DataService[T]) Rename(oldName, newName string) (err error) {
	defer func() { recordOp(s.name, "rename", err) }()
	if err := s.CheckName(newName); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	oldKey, newKey := s.key(oldName), s.key(newName)

	s.mu.Lock()
	e, exists := s.entries[oldKey]
	if !exists {
		s.mu.Unlock()
		return kernel.NotFound("workspace", oldName)
	}
	if oldKey != newKey {
		if _, taken := s.entries[newKey]; taken {
			s.mu.Unlock()
			return kernel.DuplicateName("workspace", newName)
		}
		delete(s.entries, oldKey)
	}
	s.entries[newKey] = entry[T]{name: newName, obj: e.obj}
	s.mu.Unlock()

	if s.renamedHook != nil {
		s.renamedHook(e.name, newName)
	}

	s.logger.Debug("renamed", slog.String("from", e.name), slog.String("to", newName))
	s.post(Notification[T]{Type: KindRename, Name: e.name, NewName: newName, Object: e.obj})
	return nil
}

// Clear removes every entry, firing a delete pair per entry then KindClear.
func (s *DataService[T]) Clear() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	for _, name := range s.sortedNames(true) {
		if err := s.removeLocked(name); err != nil {
			s.logger.Warn("clear: remove failed", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	recordOp(s.name, "clear", nil)
	s.post(Notification[T]{Type: KindClear})
}

func (s *DataService[T]) checkObject(name string, obj T) error {
	if err := s.CheckName(name); err != nil {
		return err
	}
	if any(obj) == nil {
		return fmt.Errorf("%q: %w", name, ErrNilObject)
	}
	return nil
}

func (s *DataService[T]) runValidateHook(name string, obj T) error {
	if s.validateHook == nil {
		return nil
	}
	return s.validateHook(name, obj)
}

func (s *DataService[T]) updateGaugeLocked() {
	entriesGauge.WithLabelValues(s.name).Set(float64(len(s.entries)))
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Retrieve returns the object stored under name.
func (s *DataService[T]) Retrieve(name string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[s.key(name)]
	if !ok {
		var zero T
		return zero, kernel.NotFound("workspace", name)
	}
	return e.obj, nil
}

// DoesExist reports whether name is stored.
func (s *DataService[T]) DoesExist(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[s.key(name)]
	return ok
}

// Size returns the number of entries, hidden ones included.
func (s *DataService[T]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Names returns the stored names in sorted order.
//
// Inputs:
//   - includeHidden: Also list names carrying the hidden prefix.
func (s *DataService[T]) Names(includeHidden bool) []string {
	return s.sortedNames(includeHidden)
}

func (s *DataService[T]) sortedNames(includeHidden bool) []string {
	es := s.sortedEntries(includeHidden)
	names := make([]string, len(es))
	for i, e := range es {
		names[i] = e.name
	}
	return names
}

// Objects returns the stored objects ordered by name.
func (s *DataService[T]) Objects(includeHidden bool) []T {
	es := s.sortedEntries(includeHidden)
	out := make([]T, len(es))
	for i, e := range es {
		out[i] = e.obj
	}
	return out
}

// sortedEntries snapshots the table ordered by name.
func (s *DataService[T]) sortedEntries(includeHidden bool) []entry[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	es := make([]entry[T], 0, len(s.entries))
	for _, e := range s.entries {
		if !includeHidden && s.isHiddenLocked(e.name) {
			continue
		}
		es = append(es, e)
	}
	slices.SortFunc(es, func(a, b entry[T]) int { return strings.Compare(a.name, b.name) })
	return es
}
