// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbarry/clog/internal/server"
	"github.com/robbarry/clog/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "clog.db"), "device-test", store.Options{
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedEntries(t *testing.T, st *store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	sessionID, err := st.CreateSession(ctx, 4242)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		e := &store.LogEntry{
			SessionID: sessionID,
			PPID:      4242,
			Timestamp: time.Now().UTC(),
			Directory: "/home/dev/proj",
			Message:   fmt.Sprintf("message %d", i),
		}
		require.NoError(t, st.InsertEntry(ctx, e))
	}
}

// fakeTransport records batches and answers with a scripted result.
type fakeTransport struct {
	batches []*server.EventBatch
	respond func(batch *server.EventBatch) (accepted, failed []string, err error)
}

func (f *fakeTransport) SendBatch(ctx context.Context, batch *server.EventBatch) ([]string, []string, error) {
	f.batches = append(f.batches, batch)
	if f.respond != nil {
		return f.respond(batch)
	}
	accepted := make([]string, 0, len(batch.Events))
	for i := range batch.Events {
		accepted = append(accepted, batch.Events[i].EventID)
	}
	return accepted, nil, nil
}

func (f *fakeTransport) ServerID() string                { return "fake" }
func (f *fakeTransport) Close(ctx context.Context) error { return nil }

func TestSyncRejectsPull(t *testing.T) {
	engine := New(newTestStore(t), &fakeTransport{}, slog.New(slog.DiscardHandler))
	err := engine.Sync(context.Background(), false)
	assert.ErrorIs(t, err, ErrPullNotSupported)
}

func TestSyncDrainsInBatches(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, 250)

	transport := &fakeTransport{}
	engine := New(st, transport, slog.New(slog.DiscardHandler))
	require.NoError(t, engine.Sync(ctx, true))

	require.Len(t, transport.batches, 3)
	assert.Len(t, transport.batches[0].Events, 100)
	assert.Len(t, transport.batches[1].Events, 100)
	assert.Len(t, transport.batches[2].Events, 50)
	assert.Equal(t, "device-test", transport.batches[0].DeviceID)

	remaining, err := st.UnsyncedEntries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestSyncSecondRunSendsNothing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, 5)

	transport := &fakeTransport{}
	engine := New(st, transport, slog.New(slog.DiscardHandler))
	require.NoError(t, engine.Sync(ctx, true))
	require.Len(t, transport.batches, 1)

	require.NoError(t, engine.Sync(ctx, true))
	assert.Len(t, transport.batches, 1, "synced entries must not be resent")
}

func TestSyncTransportErrorBumpsAttempts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, 3)

	transport := &fakeTransport{
		respond: func(batch *server.EventBatch) ([]string, []string, error) {
			return nil, nil, fmt.Errorf("connection refused")
		},
	}
	engine := New(st, transport, slog.New(slog.DiscardHandler))
	err := engine.Sync(ctx, true)
	require.Error(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.UnsyncedCount)

	entries, err := st.UnsyncedEntries(ctx, 10)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, 1, e.SyncAttempts)
	}
}

func TestSyncPartialFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, 4)

	// Reject the last event of the first batch. Later batches would
	// accept anything, so a resend of the rejected row would show up
	// as zero unsynced entries below.
	var rejectedID string
	calls := 0
	transport := &fakeTransport{
		respond: func(batch *server.EventBatch) ([]string, []string, error) {
			calls++
			var accepted, failed []string
			for i := range batch.Events {
				if calls == 1 && i == len(batch.Events)-1 {
					rejectedID = batch.Events[i].EventID
					failed = append(failed, rejectedID)
				} else {
					accepted = append(accepted, batch.Events[i].EventID)
				}
			}
			return accepted, failed, nil
		},
	}
	engine := New(st, transport, slog.New(slog.DiscardHandler))
	require.NoError(t, engine.Sync(ctx, true))

	entries, err := st.UnsyncedEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rejectedID, entries[0].EventID)
	assert.Equal(t, 1, entries[0].SyncAttempts)
	assert.Len(t, transport.batches, 1, "a rejected row must not be resent in the same pass")
}

func TestSyncSkipsFullyRejectedBatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedEntries(t, st, 2)

	transport := &fakeTransport{
		respond: func(batch *server.EventBatch) ([]string, []string, error) {
			var failed []string
			for i := range batch.Events {
				failed = append(failed, batch.Events[i].EventID)
			}
			return nil, failed, nil
		},
	}
	engine := New(st, transport, slog.New(slog.DiscardHandler))
	require.NoError(t, engine.Sync(ctx, true))
	assert.Len(t, transport.batches, 1, "rejected rows must not be refetched in the same pass")

	entries, err := st.UnsyncedEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, 1, e.SyncAttempts)
	}
}

func TestToSyncEventOmitsLocalBookkeeping(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	name := "refactor"
	root := "/home/dev/proj"
	e := &store.LogEntry{
		EventID:   "evt-1",
		SessionID: "77_1700000000",
		PPID:      77,
		Name:      &name,
		Timestamp: now,
		Directory: "/home/dev/proj/sub",
		Message:   "hello",
		RepoRoot:  &root,
	}
	ev := toSyncEvent(e)
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, "2025-03-14T09:26:53Z", ev.Timestamp)
	assert.Equal(t, &name, ev.Name)
	assert.Equal(t, &root, ev.RepoRoot)
	assert.Nil(t, ev.RepoBranch)
}
