// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package server

// Wire models for the batch replication API. The client package builds
// these from local rows; local bookkeeping columns never cross the wire.

// EventBatch is the request body for POST /v1/events/batch.
type EventBatch struct {
	Events   []SyncEvent `json:"events"`
	DeviceID string      `json:"device_id"`
}

// SyncEvent is one replicated entry.
type SyncEvent struct {
	EventID    string  `json:"event_id"`
	PPID       int32   `json:"ppid"`
	Name       *string `json:"name,omitempty"`
	Timestamp  string  `json:"timestamp"` // RFC 3339
	Directory  string  `json:"directory"`
	Message    string  `json:"message"`
	SessionID  string  `json:"session_id"`
	RepoRoot   *string `json:"repo_root,omitempty"`
	RepoBranch *string `json:"repo_branch,omitempty"`
	RepoCommit *string `json:"repo_commit,omitempty"`
}

// SyncResponse is the success reply for a batch upload.
type SyncResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	SyncedCount *int   `json:"synced_count,omitempty"`
}

// ErrorResponse is the body of any non-200 reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
