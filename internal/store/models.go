// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package store

import "time"

// LogEntry is an immutable, append-only fact. ID is assigned by the store
// on insert; EventID is the globally unique, time-sortable idempotency key
// assigned at creation and never changed afterwards. SyncedAt and
// SyncAttempts are local bookkeeping and are never sent to a remote store.
type LogEntry struct {
	ID         int64
	EventID    string
	DeviceID   string
	SessionID  string
	PPID       int32
	Name       *string
	Timestamp  time.Time
	ReceivedAt *time.Time // remote-assigned arrival time; nil on local rows
	Directory  string
	Message    string
	RepoRoot   *string
	RepoBranch *string
	RepoCommit *string

	SyncedAt     *time.Time
	SyncAttempts int
}

// Session is a bounded window of activity attributed to one ancestor
// process. Superseded sessions stay in the store; history is only added to.
type Session struct {
	SessionID string
	PPID      int32
	Name      *string
	FirstSeen time.Time
	LastSeen  time.Time
	IsActive  bool
}

// Stats is the diagnostic surface exposed by the info command.
type Stats struct {
	DeviceID      string
	SchemaVersion int
	EntryCount    int64
	SessionCount  int64
	UnsyncedCount int64
}
