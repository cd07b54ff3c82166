// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/robbarry/clog/internal/server"
)

const (
	maxRetries   = 5
	backoffBase  = 1 * time.Second
	backoffLimit = 30 * time.Second
)

// HTTPTransport uploads batches to a clog server over HTTPS. Transient
// failures (network errors, 5xx) are retried with exponential backoff;
// 4xx responses abort immediately since retrying cannot fix them.
type HTTPTransport struct {
	HTTP      *http.Client
	serverURL string
	token     string
	logger    *slog.Logger

	// sleep is swappable in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewHTTPTransport creates a transport targeting serverURL with the
// given bearer token.
func NewHTTPTransport(serverURL, token string, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		serverURL: serverURL,
		token:     token,
		logger:    logger,
		sleep:     sleepWithContext,
	}
}

func (t *HTTPTransport) ServerID() string { return t.serverURL }

func (t *HTTPTransport) Close(ctx context.Context) error { return nil }

// SendBatch uploads one batch. The server applies the whole batch
// idempotently, so on success every event id counts as accepted.
func (t *HTTPTransport) SendBatch(ctx context.Context, batch *server.EventBatch) (accepted, failed []string, err error) {
	backoff := backoffBase
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, retryable, err := t.send(ctx, batch)
		if err == nil {
			accepted = make([]string, 0, len(batch.Events))
			for i := range batch.Events {
				accepted = append(accepted, batch.Events[i].EventID)
			}
			if resp.SyncedCount != nil {
				t.logger.Debug("server applied batch", "synced_count", *resp.SyncedCount)
			}
			return accepted, nil, nil
		}
		if !retryable {
			return nil, nil, err
		}
		lastErr = err
		t.logger.Warn("batch upload failed, retrying",
			"attempt", attempt, "max_attempts", maxRetries, "backoff", backoff, "error", err)
		if attempt == maxRetries {
			break
		}
		if sleepErr := t.sleep(ctx, backoff); sleepErr != nil {
			return nil, nil, sleepErr
		}
		backoff *= 2
		if backoff > backoffLimit {
			backoff = backoffLimit
		}
	}
	return nil, nil, fmt.Errorf("batch upload failed after %d attempts: %w", maxRetries, lastErr)
}

// send performs a single upload attempt. retryable reports whether the
// failure is worth another attempt.
func (t *HTTPTransport) send(ctx context.Context, batch *server.EventBatch) (resp *server.SyncResponse, retryable bool, err error) {
	jsonData, err := json.Marshal(batch)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", t.serverURL+"/v1/events/batch", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.token)

	httpResp, err := t.HTTP.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		err := fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, string(body))
		// Client errors will not succeed on retry.
		if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
			return nil, false, err
		}
		return nil, true, err
	}

	var syncResp server.SyncResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&syncResp); err != nil {
		return nil, true, fmt.Errorf("failed to decode sync response: %w", err)
	}
	if !syncResp.Success {
		return nil, false, fmt.Errorf("server rejected batch: %s", syncResp.Message)
	}
	return &syncResp, false, nil
}

// sleepWithContext waits for d or until ctx is done, whichever first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
