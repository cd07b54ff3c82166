// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/server"
)

var (
	serveAddr        string
	serveDatabaseURL string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&serveDatabaseURL, "database-url", "", "postgres connection string (defaults to CLOG_DATABASE_URL)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote batch endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connString := serveDatabaseURL
		if connString == "" {
			connString = cfg.DatabaseURL
		}
		if connString == "" {
			return fmt.Errorf("no database configured; pass --database-url or set CLOG_DATABASE_URL")
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("CLOG_JWT_SECRET is required to verify device tokens")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, serveAddr, connString, cfg.JWTSecret, logger)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	},
}
