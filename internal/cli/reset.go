// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/store"
)

func init() {
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the local database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := os.Remove(store.DefaultPath())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Println("✓ Database cleared")
		return nil
	},
}
