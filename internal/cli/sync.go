// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/config"
	"github.com/robbarry/clog/internal/syncer"
)

var syncPushOnly bool

func init() {
	syncCmd.Flags().BoolVar(&syncPushOnly, "push-only", false, "push local entries without pulling (required)")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push unsynced entries to the remote store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		creds, err := config.ResolveCredentials(cfg, config.CredentialsPath())
		if err != nil {
			return err
		}
		if creds == nil {
			return fmt.Errorf("no sync credentials configured; run 'clog login' or set CLOG_SERVER_URL and CLOG_TOKEN")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var transport syncer.Transport
		if creds.ConnectionString != "" {
			transport, err = syncer.NewDirectTransport(ctx, creds.ConnectionString, logger)
			if err != nil {
				return err
			}
		} else {
			transport = syncer.NewHTTPTransport(creds.ServerURL, creds.Token, logger)
		}
		defer transport.Close(ctx)

		before, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		if err := syncer.New(st, transport, logger).Sync(ctx, syncPushOnly); err != nil {
			return err
		}

		after, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Synced %d entries\n", before.UnsyncedCount-after.UnsyncedCount)
		return nil
	},
}
