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

	"github.com/AleutianAI/AleutianReduce/services/reduce/storage/badger"
)

const badgerPrefix = "archive/ws/"

// BadgerStore keeps entries as JSON values under "archive/ws/<name>".
type BadgerStore struct {
	kv *badger.Store
}

// OpenBadger opens a persistent BadgerStore in dir.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = logger
	kv, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{kv: kv}, nil
}

// NewBadgerStore wraps an already open store. Close closes kv.
func NewBadgerStore(kv *badger.Store) *BadgerStore {
	return &BadgerStore{kv: kv}
}

func badgerKey(name string) []byte {
	return []byte(badgerPrefix + name)
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, e Entry) (err error) {
	defer func() { recordOp(BackendBadger, "save", err) }()
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, badgerKey(e.Name), data)
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, name string) (e Entry, err error) {
	defer func() { recordOp(BackendBadger, "load", err) }()
	data, err := s.kv.Get(ctx, badgerKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, notFound(name)
	}
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(data)
}

// List implements Store. Badger iterates in key order, which is name order.
func (s *BadgerStore) List(ctx context.Context) (out []Summary, err error) {
	defer func() { recordOp(BackendBadger, "list", err) }()
	err = s.kv.Scan(ctx, []byte(badgerPrefix), func(_, value []byte) error {
		e, err := decodeEntry(value)
		if err != nil {
			return err
		}
		out = append(out, e.Summary())
		return nil
	})
	return out, err
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, name string) (err error) {
	defer func() { recordOp(BackendBadger, "delete", err) }()
	if _, err := s.kv.Get(ctx, badgerKey(name)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(name)
		}
		return err
	}
	return s.kv.Delete(ctx, badgerKey(name))
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	return s.kv.Close()
}
