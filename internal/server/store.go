// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists replicated entries in Postgres. Both the HTTP
// server and the direct sync transport write through it, so the two
// paths share one schema and one dedup rule.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore connects to Postgres and ensures the schema exists.
func NewPGStore(ctx context.Context, connString string, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	s := &PGStore{pool: pool, logger: logger}
	if err := s.initializeSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

// initializeSchema creates the replication tables if they don't exist.
func (s *PGStore) initializeSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		migrations := []string{
			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS log_entries (
				id          BIGSERIAL PRIMARY KEY,
				event_id    TEXT        NOT NULL UNIQUE,
				device_id   TEXT        NOT NULL,
				session_id  TEXT        NOT NULL,
				ppid        INTEGER     NOT NULL,
				name        TEXT,
				timestamp   TIMESTAMPTZ NOT NULL,
				received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				directory   TEXT        NOT NULL,
				message     TEXT        NOT NULL,
				repo_root   TEXT,
				repo_branch TEXT,
				repo_commit TEXT
			)`,

			`CREATE INDEX IF NOT EXISTS log_entries_device_ts_idx ON log_entries(device_id, timestamp)`,
			`CREATE INDEX IF NOT EXISTS log_entries_session_idx ON log_entries(session_id)`,

			/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync_state (
				device_id    TEXT        PRIMARY KEY,
				last_sync_at TIMESTAMPTZ NOT NULL
			)`,
		}
		for _, migration := range migrations {
			if _, err := tx.Exec(ctx, migration); err != nil {
				return fmt.Errorf("schema migration failed: %w", err)
			}
		}
		return nil
	})
}

// InsertEvents stores a batch of events for a device. Each row is
// inserted with ON CONFLICT DO NOTHING so replayed batches are
// harmless; a row that fails is logged, reported in failed, and does
// not abort the rest of the batch.
func (s *PGStore) InsertEvents(ctx context.Context, deviceID string, events []SyncEvent) (accepted, failed []string, err error) {
	const insertSQL = /*language=postgresql*/ `
		INSERT INTO log_entries
			(event_id, device_id, session_id, ppid, name, timestamp, directory, message, repo_root, repo_branch, repo_commit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING`

	for i := range events {
		ev := &events[i]
		ts, parseErr := time.Parse(time.RFC3339Nano, ev.Timestamp)
		if parseErr != nil {
			s.logger.Warn("skipping event with bad timestamp", "event_id", ev.EventID, "error", parseErr)
			failed = append(failed, ev.EventID)
			continue
		}
		_, execErr := s.pool.Exec(ctx, insertSQL,
			ev.EventID, deviceID, ev.SessionID, ev.PPID, ev.Name,
			ts, ev.Directory, ev.Message, ev.RepoRoot, ev.RepoBranch, ev.RepoCommit)
		if execErr != nil {
			s.logger.Warn("failed to insert event", "event_id", ev.EventID, "error", execErr)
			failed = append(failed, ev.EventID)
			continue
		}
		accepted = append(accepted, ev.EventID)
	}

	if len(accepted) > 0 {
		if touchErr := s.TouchDevice(ctx, deviceID); touchErr != nil {
			s.logger.Warn("failed to update device sync state", "device_id", deviceID, "error", touchErr)
		}
	}
	return accepted, failed, nil
}

// InsertBatch stores a batch atomically. Unlike InsertEvents it rolls
// the whole batch back on any row error, which matches the HTTP
// contract where the client marks every event synced on a 200.
func (s *PGStore) InsertBatch(ctx context.Context, deviceID string, events []SyncEvent) (int, error) {
	const insertSQL = /*language=postgresql*/ `
		INSERT INTO log_entries
			(event_id, device_id, session_id, ppid, name, timestamp, directory, message, repo_root, repo_branch, repo_commit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING`

	inserted := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for i := range events {
			ev := &events[i]
			ts, parseErr := time.Parse(time.RFC3339Nano, ev.Timestamp)
			if parseErr != nil {
				return fmt.Errorf("event %s has bad timestamp: %w", ev.EventID, parseErr)
			}
			tag, execErr := tx.Exec(ctx, insertSQL,
				ev.EventID, deviceID, ev.SessionID, ev.PPID, ev.Name,
				ts, ev.Directory, ev.Message, ev.RepoRoot, ev.RepoBranch, ev.RepoCommit)
			if execErr != nil {
				return fmt.Errorf("insert event %s: %w", ev.EventID, execErr)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if touchErr := s.TouchDevice(ctx, deviceID); touchErr != nil {
		s.logger.Warn("failed to update device sync state", "device_id", deviceID, "error", touchErr)
	}
	return inserted, nil
}

// TouchDevice records when a device last delivered a batch.
func (s *PGStore) TouchDevice(ctx context.Context, deviceID string) error {
	_, err := s.pool.Exec(ctx, /*language=postgresql*/ `
		INSERT INTO sync_state (device_id, last_sync_at) VALUES ($1, now())
		ON CONFLICT (device_id) DO UPDATE SET last_sync_at = now()`,
		deviceID)
	return err
}
