// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the clog commands together. The bare invocation
// logs a message into the current session; subcommands cover listing,
// streaming, replication, and credential management.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/config"
	"github.com/robbarry/clog/internal/device"
	"github.com/robbarry/clog/internal/procfind"
	"github.com/robbarry/clog/internal/store"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clog [message]",
	Short: "Fast changelog tool with session tracking",
	Long: `clog records short activity notes against the terminal session that
wrote them, tags each note with the surrounding git repository, and can
replicate everything to a remote store with 'clog sync'.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := slog.LevelWarn
		if cfg.Debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			// Bare invocation behaves like 'clog list'.
			return runList(cmd.Context(), listOptions{limit: defaultListLimit})
		}
		return runLog(cmd.Context(), strings.Join(args, " "))
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openStore opens the local database with the persistent device id.
func openStore(ctx context.Context) (*store.Store, error) {
	deviceID, err := device.GetOrCreateID(device.DefaultPath())
	if err != nil {
		return nil, fmt.Errorf("resolve device id: %w", err)
	}
	return store.Open(ctx, store.DefaultPath(), deviceID, store.Options{
		SessionWindow: cfg.SessionWindow,
		Logger:        logger,
	})
}

// ownerPID resolves the terminal session owner.
func ownerPID() int32 {
	return procfind.NewResolver(nil, logger).OwnerPID()
}
