package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// DateLayout is how letter dates are stored
const DateLayout = "2006-01-02"

// Letter is one transcribed family letter
type Letter struct {
	ID             int64     `db:"id"`
	Date           time.Time `db:"date"`
	Description    string    `db:"description"`
	Content        string    `db:"content"`    // verbatim transcript
	ScanPaths      []string  `db:"scan_paths"` // JSON array, page order
	SourceTextPath string    `db:"source_text_path"`
	CreatedAt      time.Time `db:"created_at"`
}

// LetterQuery selects letters by inclusive date range and substring
type LetterQuery struct {
	From     time.Time // zero means unbounded
	To       time.Time // zero means unbounded
	Contains string    // case-insensitive, matched against content or description
}

const letterColumns = `id, date, description, content, scan_paths, source_text_path, created_at`

// InsertLetter inserts a letter and sets its ID
func (t *Tx) InsertLetter(ctx context.Context, l *Letter) error {
	if l.Date.IsZero() {
		return storeErr("insert letter", errors.New("letter has no date"))
	}

	scanPaths, err := encodeScanPaths(l.ScanPaths)
	if err != nil {
		return storeErr("insert letter", err)
	}

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx, `
	INSERT INTO letters (date, description, content, scan_paths, source_text_path, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`, l.Date.Format(DateLayout), l.Description, l.Content, scanPaths, l.SourceTextPath, l.CreatedAt)
	if err != nil {
		return storeErr("insert letter", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storeErr("insert letter", err)
	}
	l.ID = id

	return nil
}

// Get retrieves a letter by ID, or nil if there is none
func (d *DB) Get(ctx context.Context, id int64) (*Letter, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+letterColumns+` FROM letters WHERE id = ?`, id)

	l, err := scanLetter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get letter", err)
	}

	return l, nil
}

// GetMany retrieves the letters with the given IDs, skipping unknown ones
func (d *DB) GetMany(ctx context.Context, ids []int64) ([]*Letter, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	return d.queryLetters(ctx, "get letters",
		`SELECT `+letterColumns+` FROM letters WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
}

// List retrieves all letters in insertion order
func (d *DB) List(ctx context.Context) ([]*Letter, error) {
	return d.queryLetters(ctx, "list letters", `SELECT `+letterColumns+` FROM letters ORDER BY id`)
}

// Query retrieves letters matching q, most recent first.
// Letters with the same date keep insertion order.
func (d *DB) Query(ctx context.Context, q LetterQuery) ([]*Letter, error) {
	from, to := "0000-01-01", "9999-12-31"
	if !q.From.IsZero() {
		from = q.From.Format(DateLayout)
	}
	if !q.To.IsZero() {
		to = q.To.Format(DateLayout)
	}

	query := `SELECT ` + letterColumns + ` FROM letters WHERE date >= ? AND date <= ?`
	args := []any{from, to}

	// instr avoids LIKE treating % and _ in the user's text as wildcards
	if q.Contains != "" {
		query += ` AND (instr(lower(content), lower(?)) > 0 OR instr(lower(description), lower(?)) > 0)`
		args = append(args, q.Contains, q.Contains)
	}
	query += ` ORDER BY date DESC, id ASC`

	return d.queryLetters(ctx, "query letters", query, args...)
}

// DateBounds returns the earliest and latest letter dates.
// ok is false when the archive is empty.
func (d *DB) DateBounds(ctx context.Context) (first, last time.Time, ok bool, err error) {
	var minDate, maxDate sql.NullString
	err = d.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM letters`).Scan(&minDate, &maxDate)
	if err != nil {
		return first, last, false, storeErr("date bounds", err)
	}
	if !minDate.Valid || !maxDate.Valid {
		return first, last, false, nil
	}

	if first, err = time.Parse(DateLayout, minDate.String); err != nil {
		return first, last, false, storeErr("date bounds", err)
	}
	if last, err = time.Parse(DateLayout, maxDate.String); err != nil {
		return first, last, false, storeErr("date bounds", err)
	}

	return first, last, true, nil
}

func (d *DB) queryLetters(ctx context.Context, op, query string, args ...any) ([]*Letter, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var letters []*Letter
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		letters = append(letters, l)
	}

	return letters, storeErr(op, rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLetter(s scanner) (*Letter, error) {
	var (
		l         Letter
		date      string
		scanPaths sql.NullString
	)

	err := s.Scan(&l.ID, &date, &l.Description, &l.Content, &scanPaths, &l.SourceTextPath, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	if l.Date, err = time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("letter %d: bad date %q: %w", l.ID, date, err)
	}
	if l.ScanPaths, err = decodeScanPaths(scanPaths); err != nil {
		return nil, fmt.Errorf("letter %d: %w", l.ID, err)
	}

	return &l, nil
}

// encodeScanPaths stores page references as a JSON array, NULL when empty
func encodeScanPaths(paths []string) (sql.NullString, error) {
	if len(paths) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(paths)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode scan paths: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// decodeScanPaths accepts only a JSON array of strings and nothing after it
func decodeScanPaths(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(s.String))
	var paths []string
	if err := dec.Decode(&paths); err != nil {
		return nil, fmt.Errorf("decode scan paths: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode scan paths: trailing data")
	}
	if paths == nil {
		return nil, errors.New("decode scan paths: not an array")
	}

	return paths, nil
}
