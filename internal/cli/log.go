// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robbarry/clog/internal/gitinfo"
	"github.com/robbarry/clog/internal/store"
)

// runLog records one message against the active session, then shows
// the recent entries for the current repository.
func runLog(ctx context.Context, message string) error {
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
	if sess == nil {
		fmt.Fprintf(os.Stderr, "This appears to be a new session (PID: %d)\n", ppid)
		fmt.Fprintln(os.Stderr, "Please identify yourself by running:")
		fmt.Fprintln(os.Stderr, "  clog name <your-identifier>")
		fmt.Fprintln(os.Stderr, "Then retry your command.")
		return fmt.Errorf("no active named session")
	}

	if err := st.TouchSession(ctx, sess.SessionID); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	repo := gitinfo.Detect(cwd)

	entry := &store.LogEntry{
		SessionID: sess.SessionID,
		PPID:      ppid,
		Name:      sess.Name,
		Timestamp: time.Now().UTC(),
		Directory: cwd,
		Message:   message,
	}
	if repo != nil {
		entry.RepoRoot = &repo.Root
		entry.RepoCommit = &repo.Commit
		if repo.Branch != "" {
			entry.RepoBranch = &repo.Branch
		}
	}
	if err := st.InsertEntry(ctx, entry); err != nil {
		return err
	}

	fmt.Println("✓ Logged")
	fmt.Println("Recent entries:")

	filters := store.Filters{}
	if repo != nil {
		filters.RepoRoot = &repo.Root
	}
	entries, err := st.Entries(ctx, defaultListLimit, filters)
	if err != nil {
		return err
	}
	writeEntries(os.Stdout, entries, false)
	return nil
}
