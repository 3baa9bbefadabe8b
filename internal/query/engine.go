// Package query turns a date range and free-text filter into the letters to
// display, most recent first, with query matches marked.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/renderinc/letters-archive/internal/search"
	"github.com/renderinc/letters-archive/internal/storage"
	"github.com/renderinc/letters-archive/internal/textnorm"
)

// Mode selects how the free-text query is matched
type Mode string

const (
	// ModeSubstring matches the literal query inside content or description
	ModeSubstring Mode = "substring"
	// ModeFullText runs the query through the search index
	ModeFullText Mode = "fulltext"
)

// Filter is what the user asked for. Both bounds are inclusive and a zero
// bound is open.
type Filter struct {
	Start time.Time
	End   time.Time
	Query string
	Mode  Mode
}

// ValidationError reports filter input that cannot be run
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the filter before any query runs
func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return &ValidationError{
			Field:   "date range",
			Message: fmt.Sprintf("end %s is before start %s", f.End.Format(storage.DateLayout), f.Start.Format(storage.DateLayout)),
		}
	}
	switch f.Mode {
	case "", ModeSubstring, ModeFullText:
	default:
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", f.Mode)}
	}
	return nil
}

// Result is one matching letter ready for display
type Result struct {
	Letter      *storage.Letter
	Content     []Segment // normalized content, matches marked
	Description []Segment
	Fragments   []string // index snippets, full-text mode only
}

// Store is the read side of the letter store
type Store interface {
	Query(ctx context.Context, q storage.LetterQuery) ([]*storage.Letter, error)
	GetMany(ctx context.Context, ids []int64) ([]*storage.Letter, error)
	DateBounds(ctx context.Context) (first, last time.Time, ok bool, err error)
}

// Searcher is the full-text index
type Searcher interface {
	Search(queryStr string, from, to time.Time) ([]*search.Hit, error)
}

// Engine executes filters against the store and index
type Engine struct {
	store Store
	index Searcher
}

// NewEngine creates a query engine. index may be nil, which disables
// full-text mode.
func NewEngine(store Store, index Searcher) *Engine {
	return &Engine{store: store, index: index}
}

// Run returns every letter matching f, most recent first. Letters dated the
// same day keep insertion order.
func (e *Engine) Run(ctx context.Context, f Filter) ([]*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	// The substring is matched literally, surrounding spaces included
	q := f.Query
	if f.Mode == ModeFullText && strings.TrimSpace(q) != "" {
		return e.fullText(ctx, f.Start, f.End, q)
	}

	letters, err := e.store.Query(ctx, storage.LetterQuery{From: f.Start, To: f.End, Contains: q})
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(letters))
	for _, l := range letters {
		results = append(results, newResult(l, q))
	}
	return results, nil
}

// Bounds returns the earliest and latest letter dates, the default filter
func (e *Engine) Bounds(ctx context.Context) (first, last time.Time, ok bool, err error) {
	return e.store.DateBounds(ctx)
}

func (e *Engine) fullText(ctx context.Context, start, end time.Time, q string) ([]*Result, error) {
	if e.index == nil {
		return nil, &ValidationError{Field: "mode", Message: "full-text search is not available"}
	}

	hits, err := e.index.Search(q, start, end)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	ids := make([]int64, len(hits))
	fragments := make(map[int64][]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		fragments[h.ID] = append(h.Fragments["Content"], h.Fragments["Description"]...)
	}

	letters, err := e.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(letters, func(i, j int) bool {
		if !letters[i].Date.Equal(letters[j].Date) {
			return letters[i].Date.After(letters[j].Date)
		}
		return letters[i].ID < letters[j].ID
	})

	results := make([]*Result, 0, len(letters))
	for _, l := range letters {
		r := newResult(l, q)
		r.Fragments = fragments[l.ID]
		results = append(results, r)
	}
	return results, nil
}

// newResult normalizes a letter for display and marks query matches. The
// content is shown normalized, so it is searched for the normalized query.
func newResult(l *storage.Letter, q string) *Result {
	return &Result{
		Letter:      l,
		Content:     Segments(textnorm.Normalize(l.Content), normalizeQuery(q)),
		Description: Segments(l.Description, q),
	}
}

// normalizeQuery maps q into normalized text, keeping one space where q
// starts or ends with whitespace
func normalizeQuery(q string) string {
	n := textnorm.Normalize(q)
	if n == "" {
		return ""
	}
	if strings.TrimLeftFunc(q, unicode.IsSpace) != q {
		n = " " + n
	}
	if strings.TrimRightFunc(q, unicode.IsSpace) != q {
		n += " "
	}
	return n
}
