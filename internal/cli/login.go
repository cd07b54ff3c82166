// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/config"
	"github.com/robbarry/clog/internal/device"
	"github.com/robbarry/clog/internal/server"
)

var (
	loginServer      string
	loginToken       string
	loginDatabaseURL string
	loginIssue       bool
	loginUser        string
	loginTokenTTL    time.Duration
)

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "sync server URL")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "bearer token for the sync server")
	loginCmd.Flags().StringVar(&loginDatabaseURL, "database-url", "", "postgres connection string for direct sync")
	loginCmd.Flags().BoolVar(&loginIssue, "issue", false, "mint a device token with the shared secret (CLOG_JWT_SECRET)")
	loginCmd.Flags().StringVar(&loginUser, "user", "", "user id to embed when minting a token")
	loginCmd.Flags().DurationVar(&loginTokenTTL, "ttl", 30*24*time.Hour, "minted token lifetime")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save sync credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := &config.Credentials{
			ServerURL:        loginServer,
			Token:            loginToken,
			ConnectionString: loginDatabaseURL,
		}

		if loginIssue {
			if cfg.JWTSecret == "" {
				return fmt.Errorf("--issue requires CLOG_JWT_SECRET")
			}
			if loginServer == "" {
				return fmt.Errorf("--issue requires --server")
			}
			if loginUser == "" {
				return fmt.Errorf("--issue requires --user")
			}
			deviceID, err := device.GetOrCreateID(device.DefaultPath())
			if err != nil {
				return err
			}
			token, err := server.NewJWTAuth(cfg.JWTSecret).GenerateToken(loginUser, deviceID, loginTokenTTL)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			creds.Token = token
		}

		if err := config.SaveCredentials(creds, config.CredentialsPath()); err != nil {
			return err
		}
		fmt.Println("✓ Credentials saved")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove saved sync credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.DeleteCredentials(config.CredentialsPath()); err != nil {
			return err
		}
		fmt.Println("✓ Credentials removed")
		return nil
	},
}
