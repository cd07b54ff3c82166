// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package server implements the receiving side of replication: an HTTP
// endpoint that authenticates devices with JWT bearer tokens and lands
// their batches in Postgres.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ClientAuthenticator extracts the caller's identity from a request.
type ClientAuthenticator interface {
	GetClaims(r *http.Request) (*JWTClaims, error)
}

// EventStore lands an authenticated batch durably.
type EventStore interface {
	InsertBatch(ctx context.Context, deviceID string, events []SyncEvent) (int, error)
}

// Handlers provides the HTTP handlers for the replication API.
type Handlers struct {
	store         EventStore
	authenticator ClientAuthenticator
	logger        *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(store EventStore, authenticator ClientAuthenticator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:         store,
		authenticator: authenticator,
		logger:        logger,
	}
}

// HandleBatch processes POST /v1/events/batch.
func (h *Handlers) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	claims, err := h.authenticator.GetClaims(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "authentication_failed", err.Error())
		return
	}

	var batch EventBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse event batch")
		return
	}
	if batch.DeviceID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "device_id is required")
		return
	}
	if batch.DeviceID != claims.DeviceID {
		h.writeError(w, http.StatusForbidden, "device_mismatch", "Batch device_id does not match token")
		return
	}

	inserted, err := h.store.InsertBatch(r.Context(), batch.DeviceID, batch.Events)
	if err != nil {
		h.logger.Error("Failed to store batch", "error", err, "device_id", batch.DeviceID)
		h.writeError(w, http.StatusInternalServerError, "batch_failed", "Failed to store event batch")
		return
	}

	h.logger.Info("Stored event batch",
		"device_id", batch.DeviceID, "events", len(batch.Events), "inserted", inserted)

	response := SyncResponse{Success: true, SyncedCount: &inserted}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(&response); err != nil {
		h.logger.Error("Failed to encode batch response", "error", err, "device_id", batch.DeviceID)
	}
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeError writes a standardized error response.
func (h *Handlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(&errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
