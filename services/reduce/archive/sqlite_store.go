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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS workspace_history (
	name         TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	kind         TEXT NOT NULL,
	deleted      INTEGER NOT NULL DEFAULT 0,
	records      INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL,
	payload      BLOB NOT NULL
)`

// SQLiteStore keeps one row per entry. Summary columns are denormalized so
// List never decodes payloads.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database file at path. The special path
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite archive path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create workspace_history table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, e Entry) (err error) {
	defer func() { recordOp(BackendSQLite, "save", err) }()
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	sum := e.Summary()
	_, err = s.db.ExecContext(ctx, `INSERT INTO workspace_history(name, workspace_id, kind, deleted, records, updated_at, payload)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET
			workspace_id=excluded.workspace_id, kind=excluded.kind, deleted=excluded.deleted,
			records=excluded.records, updated_at=excluded.updated_at, payload=excluded.payload`,
		sum.Name, sum.WorkspaceID.String(), sum.Kind, boolToInt(sum.Deleted), sum.Records,
		sum.UpdatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", e.Name, err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, name string) (e Entry, err error) {
	defer func() { recordOp(BackendSQLite, "load", err) }()
	var payload []byte
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM workspace_history WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, notFound(name)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("select %s: %w", name, err)
	}
	return decodeEntry(payload)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) (out []Summary, err error) {
	defer func() { recordOp(BackendSQLite, "list", err) }()
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, workspace_id, kind, deleted, records, updated_at FROM workspace_history ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			sum     Summary
			id      string
			deleted int
			updated int64
		)
		if err := rows.Scan(&sum.Name, &id, &sum.Kind, &deleted, &sum.Records, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		sum.WorkspaceID, _ = uuid.Parse(id)
		sum.Deleted = deleted != 0
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, name string) (err error) {
	defer func() { recordOp(BackendSQLite, "delete", err) }()
	res, err := s.db.ExecContext(ctx, `DELETE FROM workspace_history WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(name)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
