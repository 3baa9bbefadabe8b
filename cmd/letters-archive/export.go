package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/renderinc/letters-archive/internal/images"
)

func newExportScansCmd(a *app) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export-scans <id>",
		Short: "Download a letter's page scans into a directory",
		Long: `Fetches every page scan of the letter from the configured image backend,
in parallel, and writes them to --out. Pages that cannot be fetched are
reported and the rest are still written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			l, err := getLetter(ctx, db, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(l.ScanPaths) == 0 {
				fmt.Fprintf(out, "Letter #%d has no scans\n", l.ID)
				return nil
			}

			store, err := a.openImages(ctx)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			failed := 0
			for _, r := range images.FetchAll(ctx, store, l.ScanPaths, a.cfg.Images.Workers) {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "  failed  %s: %v\n", r.Ref, r.Err)
					continue
				}
				dest := filepath.Join(outDir, path.Base(r.Ref))
				if err := os.WriteFile(dest, r.Data, 0o644); err != nil {
					failed++
					fmt.Fprintf(out, "  failed  %s: %v\n", r.Ref, err)
					continue
				}
				fmt.Fprintf(out, "  wrote   %s\n", dest)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scan(s) could not be exported", failed, len(l.ScanPaths))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "destination directory")

	return cmd
}
