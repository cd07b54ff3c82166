// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/store"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show database and device information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Database:       %s\n", shortenPath(store.DefaultPath()))
		fmt.Printf("Device ID:      %s\n", stats.DeviceID)
		fmt.Printf("Schema version: %d\n", stats.SchemaVersion)
		fmt.Printf("Entries:        %d\n", stats.EntryCount)
		fmt.Printf("Sessions:       %d\n", stats.SessionCount)
		fmt.Printf("Unsynced:       %d\n", stats.UnsyncedCount)
		return nil
	},
}
