// Copyright 2025 Rob Barry
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robbarry/clog/internal/store"
)

var streamPollInterval = 500 * time.Millisecond

var streamOpts listOptions

func init() {
	streamOpts.register(streamCmd)
	rootCmd.AddCommand(streamCmd)
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream new entries in real-time (tail -f style)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// Interrupt flips a flag checked at the top of each iteration;
		// an in-flight query finishes before the loop exits.
		var running atomic.Bool
		running.Store(true)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			running.Store(false)
		}()

		return streamEntries(ctx, os.Stdout, st, streamOpts, &running)
	},
}

// streamEntries seeds the output with the most recent entries, then
// polls for rows past the highest seen id until running is cleared.
func streamEntries(ctx context.Context, w io.Writer, st *store.Store, opts listOptions, running *atomic.Bool) error {
	filters, err := buildFilters(ctx, st, opts)
	if err != nil {
		return err
	}

	entries, err := st.Entries(ctx, opts.limit, filters)
	if err != nil {
		return err
	}
	var lastID int64
	for i := range entries {
		if entries[i].ID > lastID {
			lastID = entries[i].ID
		}
	}
	writeEntries(w, entries, opts.verbose)

	for running.Load() {
		fresh, err := st.EntriesSince(ctx, lastID, filters)
		if err != nil {
			return err
		}
		for i := range fresh {
			if fresh[i].ID > lastID {
				lastID = fresh[i].ID
			}
			writeEntry(w, &fresh[i], opts.verbose)
		}
		time.Sleep(streamPollInterval)
	}
	return nil
}
