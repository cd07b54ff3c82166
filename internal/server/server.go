// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server ties the Postgres store, JWT auth, and HTTP routes together.
type Server struct {
	store   *PGStore
	httpSrv *http.Server
	logger  *slog.Logger
}

// New connects to Postgres and builds a ready-to-run server listening
// on addr. jwtSecret signs and verifies device tokens.
func New(ctx context.Context, addr, connString, jwtSecret string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := NewPGStore(ctx, connString, logger)
	if err != nil {
		return nil, err
	}

	handlers := NewHandlers(store, NewJWTAuth(jwtSecret), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events/batch", handlers.HandleBatch)
	mux.HandleFunc("/healthz", handlers.HandleHealth)

	return &Server{
		store: store,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.store.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)
	s.store.Close()
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
