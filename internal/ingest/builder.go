// Package ingest builds the searchable archive from a directory of
// transcripts and a directory of page scans.
//
// Ingestion is an offline, single-process batch. It must not run
// concurrently with itself or with a server using the same store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/renderinc/letters-archive/internal/metadata"
	"github.com/renderinc/letters-archive/internal/storage"
)

// Store is the transactional letter store
type Store interface {
	WithTx(ctx context.Context, fn func(tx *storage.Tx) error) error
	RecordImport(ctx context.Context, run *storage.ImportRun) error
}

// Indexer keeps the full-text index in step with the store
type Indexer interface {
	IndexLetter(l *storage.Letter) error
	Delete(id int64) error
}

// Builder imports transcripts into the store and index
type Builder struct {
	db     Store
	index  Indexer
	parser metadata.Parser
}

// NewBuilder creates a new archive builder
func NewBuilder(db Store, index Indexer, parser metadata.Parser) *Builder {
	if parser == nil {
		parser = metadata.DatedFilename{}
	}
	return &Builder{
		db:     db,
		index:  index,
		parser: parser,
	}
}

// Stats holds import statistics
type Stats struct {
	RunID    string
	Imported int
	Failed   int
	Duration time.Duration
}

// Run imports every *.txt file in textDir. A file that fails is logged and
// counted and the run moves on; only an unreadable textDir or scanDir aborts.
func (b *Builder) Run(ctx context.Context, textDir, scanDir string) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{RunID: uuid.NewString()}

	entries, err := os.ReadDir(textDir)
	if err != nil {
		return nil, fmt.Errorf("read transcript dir: %w", err)
	}
	if _, err := os.Stat(scanDir); err != nil {
		return nil, fmt.Errorf("scan dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	log.Info().Str("run", stats.RunID).Str("text_dir", textDir).Str("scan_dir", scanDir).
		Int("transcripts", len(names)).Msg("Starting import")

	pages := metadata.NewPageResolver(b.parser, scanDir)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		letter, err := b.importFile(ctx, textDir, name, pages)
		if err != nil {
			stats.Failed++
			var perr *metadata.ParseError
			if errors.As(err, &perr) {
				log.Warn().Str("file", name).Str("reason", perr.Reason).Msg("Skipping transcript without date")
			} else {
				log.Error().Err(err).Str("file", name).Msg("Error importing transcript")
			}
			continue
		}

		stats.Imported++
		log.Info().Str("file", name).Int64("id", letter.ID).Int("scans", len(letter.ScanPaths)).Msg("Imported")
	}

	stats.Duration = time.Since(startTime)

	run := &storage.ImportRun{
		ID:         stats.RunID,
		TextDir:    textDir,
		ScanDir:    scanDir,
		StartedAt:  startTime,
		FinishedAt: startTime.Add(stats.Duration),
		Imported:   stats.Imported,
		Failed:     stats.Failed,
	}
	if err := b.db.RecordImport(ctx, run); err != nil {
		log.Warn().Err(err).Str("run", stats.RunID).Msg("Could not record import run")
	}

	log.Info().Str("run", stats.RunID).Int("imported", stats.Imported).Int("failed", stats.Failed).
		Dur("duration", stats.Duration).Msg("Import complete")

	return stats, nil
}

// importFile turns one transcript into a stored, indexed letter
func (b *Builder) importFile(ctx context.Context, textDir, name string, pages *metadata.PageResolver) (*storage.Letter, error) {
	// 1. Parse metadata from the filename
	md, err := b.parser.Parse(name)
	if err != nil {
		return nil, err
	}

	// 2. Find the page scans
	scans, err := pages.Resolve(b.parser.BaseName(name))
	if err != nil {
		return nil, fmt.Errorf("resolve pages: %w", err)
	}

	// 3. Read content verbatim
	path := filepath.Join(textDir, name)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	letter := &storage.Letter{
		Date:           md.Date,
		Description:    md.Description,
		Content:        string(content),
		ScanPaths:      scans,
		SourceTextPath: path,
	}

	// 4. Store row and index entry as one unit
	if err := b.persist(ctx, letter); err != nil {
		return nil, err
	}

	return letter, nil
}

// persist commits the row only if indexing succeeded, and withdraws the
// index entry again if the commit fails
func (b *Builder) persist(ctx context.Context, letter *storage.Letter) error {
	indexed := false

	err := b.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.InsertLetter(ctx, letter); err != nil {
			return err
		}
		if err := b.index.IndexLetter(letter); err != nil {
			return fmt.Errorf("index letter: %w", err)
		}
		indexed = true
		return nil
	})
	if err == nil {
		return nil
	}

	if indexed {
		if delErr := b.index.Delete(letter.ID); delErr != nil {
			log.Error().Err(delErr).Int64("id", letter.ID).Msg("Could not withdraw index entry after failed commit")
		}
	}
	letter.ID = 0

	return err
}
