// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/gitinfo"
	"github.com/robbarry/clog/internal/store"
)

const defaultListLimit = 10

// listOptions collects the shared filter flags of list and stream.
type listOptions struct {
	limit   int
	all     bool
	repo    string
	filter  string
	today   bool
	session bool
	verbose bool
}

func (o *listOptions) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.limit, "limit", "n", defaultListLimit, "number of recent entries to show")
	cmd.Flags().BoolVar(&o.all, "all", false, "show entries from all repos (not just current)")
	cmd.Flags().StringVar(&o.repo, "repo", "", "filter by specific repo root")
	cmd.Flags().StringVar(&o.filter, "filter", "", "filter by session name")
	cmd.Flags().BoolVar(&o.today, "today", false, "show only today's entries")
	cmd.Flags().BoolVar(&o.session, "session", false, "show entries from current session")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "use verbose output format")
}

var listOpts listOptions

func init() {
	listOpts.register(listCmd)
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), listOpts)
	},
}

// buildFilters maps the flags onto store filters. Without --all or an
// explicit --repo the current repository scopes the result.
func buildFilters(ctx context.Context, st *store.Store, opts listOptions) (store.Filters, error) {
	f := store.Filters{TodayOnly: opts.today}

	switch {
	case opts.repo != "":
		f.RepoRoot = &opts.repo
	case !opts.all:
		if cwd, err := os.Getwd(); err == nil {
			if info := gitinfo.Detect(cwd); info != nil {
				f.RepoRoot = &info.Root
			}
		}
	}

	if opts.filter != "" {
		f.Name = &opts.filter
	}

	if opts.session {
		sess, err := st.ActiveSession(ctx, ownerPID())
		if err != nil {
			return f, err
		}
		if sess != nil {
			f.SessionID = &sess.SessionID
		}
	}
	return f, nil
}

func runList(ctx context.Context, opts listOptions) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	filters, err := buildFilters(ctx, st, opts)
	if err != nil {
		return err
	}

	entries, err := st.Entries(ctx, opts.limit, filters)
	if err != nil {
		return err
	}
	writeEntries(os.Stdout, entries, opts.verbose)
	return nil
}
