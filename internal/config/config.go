// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime settings from the environment and resolves
// sync credentials through a layered chain: environment variables first,
// then the OS secret store, then the on-disk config file. Each layer
// overrides the ones after it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "clog"
	keyringUser    = "sync"
)

// Config holds environment-derived settings.
type Config struct {
	ServerURL     string        `env:"CLOG_SERVER_URL"`
	Token         string        `env:"CLOG_TOKEN"`
	DatabaseURL   string        `env:"CLOG_DATABASE_URL"`
	SessionWindow time.Duration `env:"CLOG_SESSION_WINDOW" envDefault:"24h"`
	JWTSecret     string        `env:"CLOG_JWT_SECRET"`
	Debug         bool          `env:"CLOG_DEBUG"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Credentials selects a sync transport: ServerURL+Token for the HTTP
// batch endpoint, or ConnectionString for direct Postgres.
type Credentials struct {
	ServerURL        string `json:"server_url,omitempty"`
	Token            string `json:"token,omitempty"`
	ConnectionString string `json:"connection_string,omitempty"`
}

// valid reports whether the credentials select a usable transport.
func (c *Credentials) valid() bool {
	if c == nil {
		return false
	}
	return (c.ServerURL != "" && c.Token != "") || c.ConnectionString != ""
}

// CredentialsPath returns the config-file layer location.
func CredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".clog", "credentials.json")
}

// keyring indirection so tests run without an OS secret store.
var (
	keyringGet    = func() (string, error) { return keyring.Get(keyringService, keyringUser) }
	keyringSet    = func(blob string) error { return keyring.Set(keyringService, keyringUser, blob) }
	keyringDelete = func() error { return keyring.Delete(keyringService, keyringUser) }
)

// ResolveCredentials walks the credential chain and returns the first
// layer that yields usable credentials, or nil when none is configured.
func ResolveCredentials(cfg Config, filePath string) (*Credentials, error) {
	if c := (&Credentials{ServerURL: cfg.ServerURL, Token: cfg.Token, ConnectionString: cfg.DatabaseURL}); c.valid() {
		return c, nil
	}

	if blob, err := keyringGet(); err == nil && blob != "" {
		var c Credentials
		if err := json.Unmarshal([]byte(blob), &c); err != nil {
			return nil, fmt.Errorf("decode keyring credentials: %w", err)
		}
		if c.valid() {
			return &c, nil
		}
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode credentials file: %w", err)
	}
	if !c.valid() {
		return nil, nil
	}
	return &c, nil
}

// SaveCredentials stores credentials in the OS secret store, falling back
// to the config file when no secret store is available.
func SaveCredentials(creds *Credentials, filePath string) error {
	if !creds.valid() {
		return errors.New("credentials must include server_url and token, or a connection string")
	}
	blob, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if err := keyringSet(string(blob)); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(filePath, append(blob, '\n'), 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

// DeleteCredentials removes credentials from every layer it can reach.
func DeleteCredentials(filePath string) error {
	_ = keyringDelete() // absent entries are fine

	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}
