// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package store owns all local persistence: sessions, log entries and the
// schema lifecycle of the embedded SQLite database. It is the only writer
// of business fields; the sync engine writes back only the synced_at and
// sync_attempts bookkeeping columns through the methods here.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultSessionWindow is the inactivity window after which a session is
// no longer considered active.
const DefaultSessionWindow = 24 * time.Hour

// DefaultMaxSyncAttempts caps how often a row is offered for sync before
// it drops out of the unsynced set.
const DefaultMaxSyncAttempts = 10

// Options tunes store behavior. Zero values select the defaults above.
type Options struct {
	SessionWindow   time.Duration
	MaxSyncAttempts int
	Logger          *slog.Logger
}

// Store is a single long-lived handle over the embedded database. All
// access is serialized through one connection.
type Store struct {
	db          *sql.DB
	deviceID    string
	window      time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// DefaultPath returns the per-user location of the embedded database.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".clog", "clog.db")
}

// Open opens (creating if necessary) the store at path and brings its
// schema to the current version.
func Open(ctx context.Context, path, deviceID string, opts Options) (*Store, error) {
	if opts.SessionWindow <= 0 {
		opts.SessionWindow = DefaultSessionWindow
	}
	if opts.MaxSyncAttempts <= 0 {
		opts.MaxSyncAttempts = DefaultMaxSyncAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	dsn := path + "?_loc=UTC&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One connection serializes all local access.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:          db,
		deviceID:    deviceID,
		window:      opts.SessionWindow,
		maxAttempts: opts.MaxSyncAttempts,
		logger:      opts.Logger,
	}
	if err := migrate(ctx, db, deviceID, opts.Logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DeviceID returns the device identity this store stamps on new entries.
func (s *Store) DeviceID() string {
	return s.deviceID
}

// ActiveSession returns the most recent active session for ppid whose
// last_seen is within the inactivity window, or nil when none qualifies.
// The window comparison is strict: last_seen must be greater than
// now-window.
func (s *Store) ActiveSession(ctx context.Context, ppid int32) (*Session, error) {
	cutoff := time.Now().UTC().Add(-s.window)
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, ppid, name, first_seen, last_seen, is_active
		FROM sessions
		WHERE ppid = ? AND is_active = 1 AND last_seen > ?
		ORDER BY last_seen DESC
		LIMIT 1`, ppid, cutoff)

	var (
		sess Session
		name sql.NullString
	)
	err := row.Scan(&sess.SessionID, &sess.PPID, &name, &sess.FirstSeen, &sess.LastSeen, &sess.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active session: %w", err)
	}
	if name.Valid {
		sess.Name = &name.String
	}
	return &sess, nil
}

// CreateSession opens a new session window for ppid and returns its id.
// Older sessions for the same ppid are superseded, never deleted.
func (s *Store) CreateSession(ctx context.Context, ppid int32) (string, error) {
	now := time.Now().UTC()
	sessionID := fmt.Sprintf("%d_%d", ppid, now.Unix())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, ppid, first_seen, last_seen, is_active)
		VALUES (?, ?, ?, ?, 1)`, sessionID, ppid, now, now)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sessionID, nil
}

// SetSessionName updates a session's operator-chosen label and refreshes
// its last_seen.
func (s *Store) SetSessionName(ctx context.Context, sessionID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, last_seen = ? WHERE session_id = ?`,
		name, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("set session name: %w", err)
	}
	return nil
}

// TouchSession refreshes a session's last_seen.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen = ? WHERE session_id = ?`,
		time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// InsertEntry appends an entry, assigning a fresh event id and the
// current device id. The passed entry is updated in place with the
// assigned ID, EventID and DeviceID. Entries are never updated or
// deleted afterwards.
func (s *Store) InsertEntry(ctx context.Context, e *LogEntry) error {
	eventID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	e.EventID = eventID.String()
	e.DeviceID = s.deviceID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO log_entries (
			event_id, device_id, ppid, name, timestamp, directory, message,
			session_id, repo_root, repo_branch, repo_commit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.DeviceID, e.PPID, e.Name, e.Timestamp, e.Directory,
		e.Message, e.SessionID, e.RepoRoot, e.RepoBranch, e.RepoCommit)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted id: %w", err)
	}
	e.ID = id
	return nil
}

const entryColumns = `id, event_id, device_id, ppid, name, timestamp, directory,
	message, session_id, repo_root, repo_branch, repo_commit, synced_at, sync_attempts`

// Entries lists entries matching the filters, newest first, capped at
// limit.
func (s *Store) Entries(ctx context.Context, limit int, f Filters) ([]LogEntry, error) {
	where, args := compileWhere(f.predicates(time.Now()))
	query := `SELECT ` + entryColumns + ` FROM log_entries` + where +
		` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)
	return s.queryEntries(ctx, query, args...)
}

// EntriesSince lists entries with id strictly greater than lastID and
// matching the filters, ordered oldest first. Designed for incremental
// polling.
func (s *Store) EntriesSince(ctx context.Context, lastID int64, f Filters) ([]LogEntry, error) {
	preds := append([]predicate{{"id", ">", lastID}}, f.predicates(time.Now())...)
	where, args := compileWhere(preds)
	query := `SELECT ` + entryColumns + ` FROM log_entries` + where + ` ORDER BY id ASC`
	return s.queryEntries(ctx, query, args...)
}

// UnsyncedEntries returns up to batchSize entries that have not been
// synced and are still within the attempt budget, ordered by local id.
func (s *Store) UnsyncedEntries(ctx context.Context, batchSize int) ([]LogEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM log_entries
		WHERE synced_at IS NULL AND sync_attempts < ?
		ORDER BY id ASC LIMIT ?`
	return s.queryEntries(ctx, query, s.maxAttempts, batchSize)
}

// MarkSynced stamps synced_at for exactly the given event ids. Safe to
// call twice for the same ids.
func (s *Store) MarkSynced(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query, args := inClause(
		`UPDATE log_entries SET synced_at = ? WHERE event_id IN `,
		time.Now().UTC(), eventIDs)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark entries synced: %w", err)
	}
	return nil
}

// BumpSyncAttempts increments the attempt counter for the given event
// ids after a failed push.
func (s *Store) BumpSyncAttempts(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query, args := inClause(
		`UPDATE log_entries SET sync_attempts = sync_attempts + 1 WHERE event_id IN `,
		nil, eventIDs)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("bump sync attempts: %w", err)
	}
	return nil
}

// SetSyncWatermark records the local copy of the last successful sync
// time for a server. Advisory only.
func (s *Store) SetSyncWatermark(ctx context.Context, serverID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (server_id, last_sync_at) VALUES (?, ?)
		ON CONFLICT(server_id) DO UPDATE SET last_sync_at = excluded.last_sync_at`,
		serverID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set sync watermark: %w", err)
	}
	return nil
}

// Stats reports the diagnostic counters for the info command.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{DeviceID: s.deviceID}

	version, err := userVersion(ctx, s.db)
	if err != nil {
		return Stats{}, err
	}
	st.SchemaVersion = version

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM log_entries`, &st.EntryCount},
		{`SELECT COUNT(*) FROM sessions`, &st.SessionCount},
		{`SELECT COUNT(*) FROM log_entries WHERE synced_at IS NULL`, &st.UnsyncedCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("count: %w", err)
		}
	}
	return st, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			e          LogEntry
			eventID    sql.NullString
			deviceID   sql.NullString
			name       sql.NullString
			repoRoot   sql.NullString
			repoBranch sql.NullString
			repoCommit sql.NullString
			syncedAt   sql.NullTime
		)
		err := rows.Scan(&e.ID, &eventID, &deviceID, &e.PPID, &name,
			&e.Timestamp, &e.Directory, &e.Message, &e.SessionID,
			&repoRoot, &repoBranch, &repoCommit, &syncedAt, &e.SyncAttempts)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.EventID = eventID.String
		e.DeviceID = deviceID.String
		if name.Valid {
			e.Name = &name.String
		}
		if repoRoot.Valid {
			e.RepoRoot = &repoRoot.String
		}
		if repoBranch.Valid {
			e.RepoBranch = &repoBranch.String
		}
		if repoCommit.Valid {
			e.RepoCommit = &repoCommit.String
		}
		if syncedAt.Valid {
			t := syncedAt.Time
			e.SyncedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// inClause builds "prefix (?, ?, ...)" with ids bound as parameters,
// optionally preceded by a leading argument.
func inClause(prefix string, leading any, ids []string) (string, []any) {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	var args []any
	if leading != nil {
		args = append(args, leading)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	return prefix + "(" + placeholders + ")", args
}
