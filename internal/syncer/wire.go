// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"time"

	"github.com/robbarry/clog/internal/server"
	"github.com/robbarry/clog/internal/store"
)

// toSyncEvent converts a local entry to its wire form. Local
// bookkeeping columns (synced_at, sync_attempts) never cross the wire.
func toSyncEvent(e *store.LogEntry) server.SyncEvent {
	return server.SyncEvent{
		EventID:    e.EventID,
		PPID:       e.PPID,
		Name:       e.Name,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Directory:  e.Directory,
		Message:    e.Message,
		SessionID:  e.SessionID,
		RepoRoot:   e.RepoRoot,
		RepoBranch: e.RepoBranch,
		RepoCommit: e.RepoCommit,
	}
}

// makeBatch builds the upload request for a set of local entries.
func makeBatch(entries []store.LogEntry, deviceID string) (*server.EventBatch, []string) {
	batch := &server.EventBatch{
		Events:   make([]server.SyncEvent, 0, len(entries)),
		DeviceID: deviceID,
	}
	ids := make([]string, 0, len(entries))
	for i := range entries {
		batch.Events = append(batch.Events, toSyncEvent(&entries[i]))
		ids = append(ids, entries[i].EventID)
	}
	return batch, ids
}
