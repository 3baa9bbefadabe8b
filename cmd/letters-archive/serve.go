package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/renderinc/letters-archive/internal/query"
	"github.com/renderinc/letters-archive/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		insecure bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browsing web server",
		Long: `Serves the archive over HTTP: a date range and text filter over the
letters, each expandable to its normalized text and page scans.

A shared password is required: set LETTERS_PASSWORD (or server.password).
--insecure serves without one, to anyone who can reach the address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if a.cfg.Server.Password == "" && !insecure {
				return errors.New("no password configured: set LETTERS_PASSWORD or pass --insecure")
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			scans, err := a.openImages(ctx)
			if err != nil {
				return err
			}

			server, err := web.NewServer(query.NewEngine(db, idx), scans, db, idx, web.Options{
				Password:      a.cfg.Server.Password,
				SessionSecret: []byte(a.cfg.Server.SessionSecret),
				SessionTTL:    a.cfg.SessionTTL(),
				FullText:      true,
				Insecure:      insecure,
			})
			if err != nil {
				return fmt.Errorf("error creating server: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Serving letters at http://%s (Ctrl+C to stop)\n", displayAddr(addr))
			return server.Run(ctx, addr, a.cfg.ShutdownTimeout())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, \":8080\")")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "serve without a password")

	return cmd
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
