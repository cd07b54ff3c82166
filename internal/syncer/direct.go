// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"log/slog"

	"github.com/robbarry/clog/internal/server"
)

// DirectTransport writes batches straight into Postgres, bypassing the
// HTTP server. It reuses the server's store so both paths share one
// schema and one dedup rule. Rows that fail individually are skipped,
// not retried within the pass.
type DirectTransport struct {
	store  *server.PGStore
	logger *slog.Logger
}

// NewDirectTransport connects to Postgres and ensures the remote
// schema exists.
func NewDirectTransport(ctx context.Context, connString string, logger *slog.Logger) (*DirectTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := server.NewPGStore(ctx, connString, logger)
	if err != nil {
		return nil, err
	}
	return &DirectTransport{store: store, logger: logger}, nil
}

func (t *DirectTransport) ServerID() string { return "postgres-direct" }

func (t *DirectTransport) Close(ctx context.Context) error {
	t.store.Close()
	return nil
}

// SendBatch inserts each event, skipping rows the remote rejects.
func (t *DirectTransport) SendBatch(ctx context.Context, batch *server.EventBatch) (accepted, failed []string, err error) {
	return t.store.InsertEvents(ctx, batch.DeviceID, batch.Events)
}
