package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/renderinc/letters-archive/internal/storage"
	"github.com/renderinc/letters-archive/internal/textnorm"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one letter with normalized text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			l, err := getLetter(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "#%d  %s  %s\n", l.ID, l.Date.Format(storage.DateLayout), l.Description)
			fmt.Fprintf(out, "Source: %s\n", l.SourceTextPath)
			for _, ref := range l.ScanPaths {
				fmt.Fprintf(out, "Scan:   %s\n", ref)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, textnorm.Normalize(l.Content))
			return nil
		},
	}
}

// getLetter loads a letter by its decimal id argument
func getLetter(ctx context.Context, db *storage.DB, arg string) (*storage.Letter, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid letter id %q", arg)
	}

	l, err := db.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error retrieving letter: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("letter not found: %d", id)
	}
	return l, nil
}
