// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEventStore records batches in memory with event_id dedup.
type fakeEventStore struct {
	seen    map[string]bool
	batches int
	fail    error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{seen: map[string]bool{}}
}

func (f *fakeEventStore) InsertBatch(ctx context.Context, deviceID string, events []SyncEvent) (int, error) {
	if f.fail != nil {
		return 0, f.fail
	}
	f.batches++
	inserted := 0
	for i := range events {
		if !f.seen[events[i].EventID] {
			f.seen[events[i].EventID] = true
			inserted++
		}
	}
	return inserted, nil
}

func newTestHandlers(store EventStore) (*Handlers, *JWTAuth) {
	auth := NewJWTAuth("test-secret")
	return NewHandlers(store, auth, slog.New(slog.DiscardHandler)), auth
}

func batchBody(t *testing.T, deviceID string, n int) *bytes.Buffer {
	t.Helper()
	batch := EventBatch{DeviceID: deviceID}
	for i := 0; i < n; i++ {
		batch.Events = append(batch.Events, SyncEvent{
			EventID:   fmt.Sprintf("evt-%d", i),
			SessionID: "9_1700000000",
			PPID:      9,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Directory: "/home/dev",
			Message:   "m",
		})
	}
	b, err := json.Marshal(&batch)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func authedRequest(t *testing.T, auth *JWTAuth, deviceID string, body *bytes.Buffer) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken("rob", deviceID, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/v1/events/batch", body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleBatchStoresEvents(t *testing.T) {
	store := newFakeEventStore()
	handlers, auth := newTestHandlers(store)

	w := httptest.NewRecorder()
	handlers.HandleBatch(w, authedRequest(t, auth, "device-abc", batchBody(t, "device-abc", 3)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp SyncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.SyncedCount)
	assert.Equal(t, 3, *resp.SyncedCount)
	assert.Equal(t, 1, store.batches)
}

func TestHandleBatchDeduplicatesReplays(t *testing.T) {
	store := newFakeEventStore()
	handlers, auth := newTestHandlers(store)

	w := httptest.NewRecorder()
	handlers.HandleBatch(w, authedRequest(t, auth, "device-abc", batchBody(t, "device-abc", 2)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handlers.HandleBatch(w, authedRequest(t, auth, "device-abc", batchBody(t, "device-abc", 2)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp SyncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 0, *resp.SyncedCount, "replayed events must not be stored twice")
}

func TestHandleBatchRequiresAuth(t *testing.T) {
	handlers, _ := newTestHandlers(newFakeEventStore())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/events/batch", batchBody(t, "device-abc", 1))
	handlers.HandleBatch(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "authentication_failed", resp.Error)
}

func TestHandleBatchRejectsDeviceMismatch(t *testing.T) {
	handlers, auth := newTestHandlers(newFakeEventStore())

	w := httptest.NewRecorder()
	handlers.HandleBatch(w, authedRequest(t, auth, "device-abc", batchBody(t, "device-other", 1)))

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "device_mismatch", resp.Error)
}

func TestHandleBatchRejectsGet(t *testing.T) {
	handlers, _ := newTestHandlers(newFakeEventStore())

	w := httptest.NewRecorder()
	handlers.HandleBatch(w, httptest.NewRequest("GET", "/v1/events/batch", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleBatchRejectsMalformedBody(t *testing.T) {
	handlers, auth := newTestHandlers(newFakeEventStore())

	w := httptest.NewRecorder()
	handlers.HandleBatch(w, authedRequest(t, auth, "device-abc", bytes.NewBufferString("{not json")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBatchStoreFailure(t *testing.T) {
	store := newFakeEventStore()
	store.fail = fmt.Errorf("connection reset")
	handlers, auth := newTestHandlers(store)

	w := httptest.NewRecorder()
	handlers.HandleBatch(w, authedRequest(t, auth, "device-abc", batchBody(t, "device-abc", 1)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "batch_failed", resp.Error)
}
