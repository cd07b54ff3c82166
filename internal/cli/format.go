// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robbarry/clog/internal/store"
)

// writeEntries renders entries oldest-first. The store returns them
// newest-first, so the slice is walked backwards.
func writeEntries(w io.Writer, entries []store.LogEntry, verbose bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		writeEntry(w, &entries[i], verbose)
	}
}

func writeEntry(w io.Writer, e *store.LogEntry, verbose bool) {
	if verbose {
		writeVerbose(w, e)
	} else {
		writeCompact(w, e)
	}
}

func writeCompact(w io.Writer, e *store.LogEntry) {
	branch := ""
	if e.RepoBranch != nil {
		branch = fmt.Sprintf(" (%s)", truncateBranch(*e.RepoBranch))
	}
	fmt.Fprintf(w, "%s [%s]%s %s\n",
		e.Timestamp.Local().Format("15:04:05"),
		entryName(e),
		branch,
		e.Message)
}

func writeVerbose(w io.Writer, e *store.LogEntry) {
	fmt.Fprintf(w, "[%s] %s (%s)\n",
		e.Timestamp.Local().Format("2006-01-02 15:04:05"),
		entryName(e),
		shortenPath(e.Directory))

	if e.RepoRoot != nil && e.RepoCommit != nil {
		branch := "detached"
		if e.RepoBranch != nil {
			branch = *e.RepoBranch
		}
		commit := *e.RepoCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		fmt.Fprintf(w, "  repo: %s  branch: %s  commit: %s\n", shortenPath(*e.RepoRoot), branch, commit)
	}

	fmt.Fprintf(w, "  %s\n\n", e.Message)
}

func entryName(e *store.LogEntry) string {
	if e.Name != nil {
		return *e.Name
	}
	return "unknown"
}

// truncateBranch caps branch names at 20 characters.
func truncateBranch(branch string) string {
	runes := []rune(branch)
	if len(runes) <= 20 {
		return branch
	}
	return string(runes[:19]) + "…"
}

// shortenPath replaces the home directory prefix with "~".
func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + strings.TrimPrefix(path, home)
	}
	return path
}
