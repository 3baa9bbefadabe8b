package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the full-text index from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			letters, err := db.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("error listing letters: %w", err)
			}
			fmt.Fprintf(out, "Found %d letters in database\n", len(letters))
			startTime := time.Now()

			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			progressFn := func(current, total int) {
				if current == total || current%100 == 0 {
					fmt.Fprintf(out, "\rIndexing: %d/%d", current, total)
				}
			}
			if err := idx.Rebuild(letters, progressFn); err != nil {
				return fmt.Errorf("error rebuilding index: %w", err)
			}

			indexCount, err := idx.Count()
			if err != nil {
				return fmt.Errorf("error getting index count: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "=== Reindex Complete ===")
			fmt.Fprintf(out, "Letters indexed: %d\n", indexCount)
			fmt.Fprintf(out, "Duration:        %v\n", time.Since(startTime).Round(time.Millisecond))
			return nil
		},
	}
}
