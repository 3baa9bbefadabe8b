package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/renderinc/letters-archive/internal/storage"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show archive statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			idx, err := a.openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			dbCount, err := db.Count(ctx)
			if err != nil {
				return fmt.Errorf("error getting database count: %w", err)
			}
			indexCount, err := idx.Count()
			if err != nil {
				return fmt.Errorf("error getting index count: %w", err)
			}
			runs, err := db.CountImports(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "=== Archive Statistics ===")
			fmt.Fprintf(out, "Letters in database: %d\n", dbCount)
			fmt.Fprintf(out, "Letters in index:    %d\n", indexCount)

			if first, last, ok, err := db.DateBounds(ctx); err != nil {
				return err
			} else if ok {
				fmt.Fprintf(out, "Date range:          %s to %s\n", first.Format(storage.DateLayout), last.Format(storage.DateLayout))
			}

			fmt.Fprintf(out, "Import runs:         %d\n", runs)
			last, err := db.LastImport(ctx)
			if err != nil {
				return err
			}
			if last != nil {
				fmt.Fprintf(out, "Last import:         %s (%d imported, %d failed)\n",
					last.FinishedAt.Local().Format("2006-01-02 15:04"), last.Imported, last.Failed)
			}
			return nil
		},
	}
}
