package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderinc/letters-archive/internal/query"
	"github.com/renderinc/letters-archive/internal/storage"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		from     string
		to       string
		fullText bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "List letters by date range and text",
		Long: `Lists letters dated between --from and --to (inclusive, YYYY-MM-DD),
most recent first. With a query, only letters whose text or title contain it
are shown, ignoring case, and matches are marked with **.

--fulltext runs the query through the search index instead, which supports
stemming and query syntax such as "exact phrase" and fuzzy~ terms.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := query.Filter{Mode: query.ModeSubstring}
			if len(args) == 1 {
				f.Query = args[0]
			}
			if fullText {
				f.Mode = query.ModeFullText
			}

			var err error
			if f.Start, err = parseDate("from", from); err != nil {
				return err
			}
			if f.End, err = parseDate("to", to); err != nil {
				return err
			}
			if err := f.Validate(); err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var index query.Searcher
			if fullText {
				idx, err := a.openIndex()
				if err != nil {
					return err
				}
				defer idx.Close()
				index = idx
			}

			results, err := query.NewEngine(db, index).Run(cmd.Context(), f)
			if err != nil {
				var verr *query.ValidationError
				if errors.As(err, &verr) {
					return err
				}
				return fmt.Errorf("search failed: %w", err)
			}

			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "earliest letter date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "latest letter date, YYYY-MM-DD")
	cmd.Flags().BoolVar(&fullText, "fulltext", false, "use the full-text index")

	return cmd
}

func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(storage.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q, want YYYY-MM-DD", name, s)
	}
	return d, nil
}

func printResults(w io.Writer, results []*query.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No letters found.")
		return
	}

	fmt.Fprintf(w, "%d letter(s)\n\n", len(results))
	for _, r := range results {
		l := r.Letter
		fmt.Fprintf(w, "%s  %s  [#%d]\n", l.Date.Format(storage.DateLayout), query.Render(r.Description, query.Bold), l.ID)
		content := query.Render(r.Content, query.Bold)
		for _, line := range strings.Split(content, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
		if len(l.ScanPaths) > 0 {
			fmt.Fprintf(w, "    (%d scan(s))\n", len(l.ScanPaths))
		}
		fmt.Fprintln(w)
	}
}
