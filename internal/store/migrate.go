// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// schemaVersion is the current schema generation, stamped in
// PRAGMA user_version.
const schemaVersion = 3

// migration is one idempotent schema step. apply runs inside a
// transaction together with the version stamp, so an interrupted step
// leaves the store at the pre-step version.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx, deviceID string) error
}

var migrations = []migration{
	{version: 2, apply: addRepoColumns},
	{version: 3, apply: addSyncColumns},
}

// migrate brings the store to the current schema version. A fresh store
// (version 0) is created at the current version directly; legacy stores
// apply the remaining steps in strictly increasing order, one
// transaction per step.
func migrate(ctx context.Context, db *sql.DB, deviceID string, logger *slog.Logger) error {
	version, err := userVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", version, schemaVersion)
	}

	if version == 0 {
		logger.Debug("creating fresh store schema", "version", schemaVersion)
		return inTx(ctx, db, func(tx *sql.Tx) error {
			if err := createCurrentSchema(ctx, tx); err != nil {
				return err
			}
			return stampVersion(ctx, tx, schemaVersion)
		})
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		logger.Info("migrating store schema", "from", version, "to", m.version)
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if err := m.apply(ctx, tx, deviceID); err != nil {
				return err
			}
			return stampVersion(ctx, tx, m.version)
		})
		if err != nil {
			return fmt.Errorf("migrate to version %d: %w", m.version, err)
		}
		version = m.version
	}
	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func stampVersion(ctx context.Context, tx *sql.Tx, version int) error {
	// PRAGMA does not accept bound parameters; version is a compile-time
	// constant from the migrations table, never input.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, version)); err != nil {
		return fmt.Errorf("stamp schema version %d: %w", version, err)
	}
	return nil
}

// createCurrentSchema creates all current tables and indexes for a fresh
// install.
func createCurrentSchema(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS log_entries (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id      TEXT,
			device_id     TEXT,
			ppid          INTEGER NOT NULL,
			name          TEXT,
			timestamp     DATETIME NOT NULL,
			directory     TEXT NOT NULL,
			message       TEXT NOT NULL,
			session_id    TEXT NOT NULL,
			repo_root     TEXT,
			repo_branch   TEXT,
			repo_commit   TEXT,
			synced_at     DATETIME,
			sync_attempts INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_log_entries_event_id ON log_entries(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_timestamp ON log_entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_log_entries_session ON log_entries(session_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			ppid       INTEGER NOT NULL,
			name       TEXT,
			first_seen DATETIME NOT NULL,
			last_seen  DATETIME NOT NULL,
			is_active  INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ppid_active ON sessions(ppid, is_active)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			server_id    TEXT PRIMARY KEY,
			last_sync_at DATETIME
		)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// addRepoColumns is the v1 -> v2 step: nullable repository context columns.
func addRepoColumns(ctx context.Context, tx *sql.Tx, _ string) error {
	for _, col := range []string{"repo_root", "repo_branch", "repo_commit"} {
		ok, err := columnExists(ctx, tx, "log_entries", col)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `ALTER TABLE log_entries ADD COLUMN `+col+` TEXT`); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// addSyncColumns is the v2 -> v3 step: sync bookkeeping columns, an
// event_id/device_id backfill for pre-existing rows, and the uniqueness
// index that makes replication idempotent.
func addSyncColumns(ctx context.Context, tx *sql.Tx, deviceID string) error {
	cols := []struct{ name, ddl string }{
		{"event_id", `ALTER TABLE log_entries ADD COLUMN event_id TEXT`},
		{"device_id", `ALTER TABLE log_entries ADD COLUMN device_id TEXT`},
		{"synced_at", `ALTER TABLE log_entries ADD COLUMN synced_at DATETIME`},
		{"sync_attempts", `ALTER TABLE log_entries ADD COLUMN sync_attempts INTEGER NOT NULL DEFAULT 0`},
	}
	for _, col := range cols {
		ok, err := columnExists(ctx, tx, "log_entries", col.name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", col.name, err)
		}
	}

	if err := backfillEventIDs(ctx, tx, deviceID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_log_entries_event_id ON log_entries(event_id)`); err != nil {
		return fmt.Errorf("create event_id index: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sync_state (
		server_id    TEXT PRIMARY KEY,
		last_sync_at DATETIME
	)`); err != nil {
		return fmt.Errorf("create sync_state: %w", err)
	}
	return nil
}

// backfillEventIDs assigns a fresh event id and the current device id to
// every row that predates the sync columns.
func backfillEventIDs(ctx context.Context, tx *sql.Tx, deviceID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM log_entries WHERE event_id IS NULL`)
	if err != nil {
		return fmt.Errorf("select rows to backfill: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan backfill row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close backfill rows: %w", err)
	}

	for _, id := range ids {
		eventID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate event id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE log_entries SET event_id = ?, device_id = ? WHERE id = ?`,
			eventID.String(), deviceID, id); err != nil {
			return fmt.Errorf("backfill row %d: %w", id, err)
		}
	}
	return nil
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("scan table_info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
