// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createV1Schema lays down the original schema generation: log entries
// without repository or sync columns.
func createV1Schema(t *testing.T, db *sql.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE log_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			ppid       INTEGER NOT NULL,
			name       TEXT,
			timestamp  DATETIME NOT NULL,
			directory  TEXT NOT NULL,
			message    TEXT NOT NULL,
			session_id TEXT NOT NULL
		)`,
		`CREATE TABLE sessions (
			session_id TEXT PRIMARY KEY,
			ppid       INTEGER NOT NULL,
			name       TEXT,
			first_seen DATETIME NOT NULL,
			last_seen  DATETIME NOT NULL,
			is_active  INTEGER NOT NULL DEFAULT 1
		)`,
		`PRAGMA user_version = 1`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func seedLegacyEntries(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := db.Exec(`
			INSERT INTO log_entries (ppid, timestamp, directory, message, session_id)
			VALUES (?, ?, ?, ?, ?)`,
			100, time.Now().UTC(), "/tmp", "legacy", "100_1")
		require.NoError(t, err)
	}
}

func TestMigrate_FreshInstallStampsCurrentVersion(t *testing.T) {
	s := newTestStore(t)
	version, err := userVersion(context.Background(), s.db)
	require.NoError(t, err)
	require.Equal(t, schemaVersion, version)
}

func TestMigrate_FromV1BackfillsEventIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db := openRaw(t, path)
	createV1Schema(t, db)
	seedLegacyEntries(t, db, 5)
	require.NoError(t, db.Close())

	s, err := Open(context.Background(), path, "device-test", Options{})
	require.NoError(t, err)
	defer s.Close()

	version, err := userVersion(context.Background(), s.db)
	require.NoError(t, err)
	require.Equal(t, schemaVersion, version)

	entries, err := s.EntriesSince(context.Background(), 0, Filters{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	seen := map[string]bool{}
	for _, e := range entries {
		require.NotEmpty(t, e.EventID)
		require.False(t, seen[e.EventID], "event ids must be distinct")
		seen[e.EventID] = true
		require.Equal(t, "device-test", e.DeviceID)
		require.Nil(t, e.SyncedAt)
	}
}

func TestMigrate_FromV2AddsOnlySyncColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db := openRaw(t, path)
	createV1Schema(t, db)
	for _, stmt := range []string{
		`ALTER TABLE log_entries ADD COLUMN repo_root TEXT`,
		`ALTER TABLE log_entries ADD COLUMN repo_branch TEXT`,
		`ALTER TABLE log_entries ADD COLUMN repo_commit TEXT`,
		`PRAGMA user_version = 2`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	seedLegacyEntries(t, db, 3)
	require.NoError(t, db.Close())

	s, err := Open(context.Background(), path, "device-test", Options{})
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.EntriesSince(context.Background(), 0, Filters{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		require.NotEmpty(t, e.EventID)
	}
}

func TestMigrate_RunningTwiceIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db := openRaw(t, path)
	createV1Schema(t, db)
	seedLegacyEntries(t, db, 4)
	require.NoError(t, db.Close())

	s, err := Open(context.Background(), path, "device-test", Options{})
	require.NoError(t, err)
	first, err := s.EntriesSince(context.Background(), 0, Filters{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopen: migrations must not rewrite event ids or duplicate rows.
	s, err = Open(context.Background(), path, "device-test", Options{})
	require.NoError(t, err)
	defer s.Close()

	second, err := s.EntriesSince(context.Background(), 0, Filters{})
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].EventID, second[i].EventID)
	}
}

func TestMigrate_NewerVersionRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")

	db := openRaw(t, path)
	_, err := db.Exec(`PRAGMA user_version = 99`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(context.Background(), path, "device-test", Options{})
	require.Error(t, err)
}
