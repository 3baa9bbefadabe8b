package storage

import (
	"context"
	"database/sql"
	"time"
)

// ImportRun summarizes one batch import
type ImportRun struct {
	ID         string    `db:"id"`
	TextDir    string    `db:"text_dir"`
	ScanDir    string    `db:"scan_dir"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Imported   int       `db:"imported"`
	Failed     int       `db:"failed"`
}

// RecordImport stores the summary of an import run
func (d *DB) RecordImport(ctx context.Context, run *ImportRun) error {
	_, err := d.db.ExecContext(ctx, `
	INSERT INTO imports (id, text_dir, scan_dir, started_at, finished_at, imported, failed)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TextDir, run.ScanDir, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Imported, run.Failed)
	return storeErr("record import", err)
}

// LastImport returns the most recent import run, or nil if there has been none
func (d *DB) LastImport(ctx context.Context) (*ImportRun, error) {
	run := &ImportRun{}
	err := d.db.QueryRowContext(ctx, `
	SELECT id, text_dir, scan_dir, started_at, finished_at, imported, failed
	FROM imports
	ORDER BY finished_at DESC
	LIMIT 1
	`).Scan(&run.ID, &run.TextDir, &run.ScanDir, &run.StartedAt, &run.FinishedAt, &run.Imported, &run.Failed)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("last import", err)
	}

	return run, nil
}

// CountImports returns how many import runs have been recorded
func (d *DB) CountImports(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM imports").Scan(&count)
	return count, storeErr("count imports", err)
}
