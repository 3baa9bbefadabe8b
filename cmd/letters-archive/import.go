package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderinc/letters-archive/internal/ingest"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		textDir string
		scanDir string
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transcripts and link their page scans",
		Long: `Reads every *.txt transcript in --text-dir, takes the letter date and
description from the filename, links matching page scans from --scan-dir and
stores the letter in the database and search index.

Files that cannot be imported are logged and counted; the import carries on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if scanDir == "" {
				scanDir = a.cfg.Images.ScanDir
			}

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

			stats, err := ingest.NewBuilder(db, idx, nil).Run(cmd.Context(), textDir, scanDir)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintln(out, "=== Import Complete ===")
			fmt.Fprintf(out, "Run:       %s\n", stats.RunID)
			fmt.Fprintf(out, "Imported:  %d\n", stats.Imported)
			fmt.Fprintf(out, "Failed:    %d\n", stats.Failed)
			fmt.Fprintf(out, "Duration:  %v\n", stats.Duration.Round(time.Millisecond))

			if strict && stats.Failed > 0 {
				return fmt.Errorf("%d transcript(s) failed to import", stats.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&textDir, "text-dir", "", "directory of .txt transcripts")
	cmd.Flags().StringVar(&scanDir, "scan-dir", "", "directory of .png page scans (default from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero if any transcript fails")
	_ = cmd.MarkFlagRequired("text-dir")

	return cmd
}
