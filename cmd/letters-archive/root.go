package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/renderinc/letters-archive/internal/config"
	"github.com/renderinc/letters-archive/internal/images"
	"github.com/renderinc/letters-archive/internal/logging"
	"github.com/renderinc/letters-archive/internal/search"
	"github.com/renderinc/letters-archive/internal/storage"
)

// app carries the loaded configuration to every command
type app struct {
	configPath string
	dataDir    string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "letters-archive",
		Short:        "Searchable archive of transcribed family letters",
		Long:         "Imports dated letter transcripts and their page scans, then lets you browse and search them by date and text.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "directory for the database and index (default \"data\")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newImportCmd(a),
		newSearchCmd(a),
		newServeCmd(a),
		newReindexCmd(a),
		newStatsCmd(a),
		newShowCmd(a),
		newExportScansCmd(a),
	)

	return root
}

// load applies flags over file and environment settings
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	if err := logging.SetupWriter(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()); err != nil {
		return err
	}

	a.cfg = cfg
	return nil
}

func (a *app) openDB() (*storage.DB, error) {
	db, err := storage.Open(a.cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return db, nil
}

func (a *app) openIndex() (*search.Index, error) {
	idx, err := search.Open(a.cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("error opening search index: %w", err)
	}
	return idx, nil
}

// openImages builds the configured scan backend behind the shared cache
func (a *app) openImages(ctx context.Context) (*images.Cache, error) {
	ic := a.cfg.Images

	var store images.Store
	switch ic.Backend {
	case "gcs":
		gc := images.DefaultGCSConfig(ic.Bucket)
		gc.Prefix = ic.Prefix
		gc.RequestsPerSecond = ic.RequestsPerSecond
		gc.MaxRetries = ic.MaxRetries
		s, err := images.NewGCSStore(ctx, gc)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = images.NewLocalStore(ic.ScanDir)
	}

	return images.NewCache(store, ic.CacheSize)
}
