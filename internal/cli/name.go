// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(nameCmd)
}

var nameCmd = &cobra.Command{
	Use:   "name <identifier>",
	Short: "Register a name for the current terminal session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ppid := ownerPID()
		sess, err := st.ActiveSession(ctx, ppid)
		if err != nil {
			return err
		}

		sessionID := ""
		if sess != nil {
			sessionID = sess.SessionID
		} else {
			sessionID, err = st.CreateSession(ctx, ppid)
			if err != nil {
				return err
			}
		}
		if err := st.SetSessionName(ctx, sessionID, args[0]); err != nil {
			return err
		}

		fmt.Printf("✓ Session registered as '%s' (PID: %d)\n", args[0], ppid)
		return nil
	},
}
