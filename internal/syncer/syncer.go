// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package syncer pushes locally recorded entries to a remote store in
// batches. Replication is one-way: entries only flow from the local
// database outward, and a successful upload marks the rows synced so
// repeated runs converge without resending.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robbarry/clog/internal/server"
	"github.com/robbarry/clog/internal/store"
)

// DefaultBatchSize caps how many entries a single upload carries.
const DefaultBatchSize = 100

// ErrPullNotSupported is returned when a sync run is requested without
// push-only mode. Pulling remote entries back down is not implemented.
var ErrPullNotSupported = errors.New("pull sync is not supported, run with --push-only")

// Transport delivers one batch to a remote store. Implementations own
// their retry policy; an error return means the batch could not be
// delivered after the transport gave up.
type Transport interface {
	// SendBatch uploads one batch. accepted lists the event ids the
	// remote now durably holds (including duplicates it already had);
	// failed lists ids skipped this pass due to per-row errors.
	SendBatch(ctx context.Context, batch *server.EventBatch) (accepted, failed []string, err error)

	// ServerID identifies the remote for the local sync watermark.
	ServerID() string

	Close(ctx context.Context) error
}

// Engine drains unsynced entries through a Transport.
type Engine struct {
	store     *store.Store
	transport Transport
	batchSize int
	logger    *slog.Logger
}

// New creates a sync engine over the given local store and transport.
func New(st *store.Store, transport Transport, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		transport: transport,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// Sync pushes all unsynced entries in batches until none remain.
// pushOnly must be true; bidirectional sync is not supported.
func (e *Engine) Sync(ctx context.Context, pushOnly bool) error {
	if !pushOnly {
		return ErrPullNotSupported
	}

	// Rows the remote rejects are skipped for the rest of this pass:
	// their attempt counter is bumped and they stay unsynced, but they
	// are never resent until the next Sync call.
	skipped := make(map[string]bool)
	total := 0
	for {
		entries, err := e.store.UnsyncedEntries(ctx, e.batchSize)
		if err != nil {
			return fmt.Errorf("load unsynced entries: %w", err)
		}
		pending := entries[:0]
		for _, entry := range entries {
			if !skipped[entry.EventID] {
				pending = append(pending, entry)
			}
		}
		if len(pending) == 0 {
			switch {
			case len(skipped) > 0:
				e.logger.Warn("sync pass finished with rejected entries",
					"synced", total, "skipped", len(skipped))
			case total == 0:
				e.logger.Info("nothing to sync")
			default:
				e.logger.Info("sync complete", "synced", total)
			}
			return nil
		}

		batch, ids := makeBatch(pending, e.store.DeviceID())
		e.logger.Debug("pushing batch", "events", len(ids), "server", e.transport.ServerID())

		accepted, failed, err := e.transport.SendBatch(ctx, batch)
		if err != nil {
			if bumpErr := e.store.BumpSyncAttempts(ctx, ids); bumpErr != nil {
				e.logger.Warn("failed to record sync attempt", "error", bumpErr)
			}
			return fmt.Errorf("push batch: %w", err)
		}
		if len(failed) > 0 {
			e.logger.Warn("remote rejected entries", "count", len(failed))
			for _, id := range failed {
				skipped[id] = true
			}
			if bumpErr := e.store.BumpSyncAttempts(ctx, failed); bumpErr != nil {
				e.logger.Warn("failed to record sync attempt", "error", bumpErr)
			}
		}
		if len(accepted) == 0 {
			if len(failed) == 0 {
				return fmt.Errorf("remote reported no outcome for %d entries", len(ids))
			}
			continue
		}

		if err := e.store.MarkSynced(ctx, accepted); err != nil {
			return fmt.Errorf("mark entries synced: %w", err)
		}
		if err := e.store.SetSyncWatermark(ctx, e.transport.ServerID()); err != nil {
			return fmt.Errorf("update sync watermark: %w", err)
		}
		total += len(accepted)
	}
}
