package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the canonical layout of a letter date
const DateLayout = "2006-01-02"

// Metadata is what a source filename tells us about a letter
type Metadata struct {
	Date        time.Time
	Description string
}

// Parser extracts letter metadata from a filename.
// Each filename convention gets its own implementation.
type Parser interface {
	// Parse returns the date and description encoded in filename
	Parse(filename string) (Metadata, error)

	// BaseName returns the key shared by a transcript and all of its page scans
	BaseName(filename string) string
}

// ParseError is returned when a filename does not yield a date
type ParseError struct {
	Filename string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse metadata from %q: %s", e.Filename, e.Reason)
}

var (
	leadingDate = regexp.MustCompile(`^(\d{4}-\d{2})(-\d{2})?`)
	pageSuffix  = regexp.MustCompile(`(?i)\s*(?:-\s*)?(?:page|pg)\s*\d+\s*of\s*\d+.*$`)
)

// DatedFilename handles names like "1943-03-05 - Letter to Mother - Page 1 of 2.png"
type DatedFilename struct{}

var _ Parser = DatedFilename{}

// Parse extracts the leading YYYY-MM-DD or YYYY-MM date and the description
func (DatedFilename) Parse(filename string) (Metadata, error) {
	name := filepath.Base(filename)

	m := leadingDate.FindStringSubmatch(name)
	if m == nil {
		return Metadata{}, &ParseError{Filename: name, Reason: "missing date"}
	}

	dateStr := m[1] + m[2]
	if m[2] == "" {
		dateStr += "-01" // YYYY-MM means the first of the month
	}

	date, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return Metadata{}, &ParseError{Filename: name, Reason: "invalid date " + dateStr}
	}

	desc := strings.TrimLeft(name[len(m[0]):], " -_")
	desc = stripPageSuffix(desc)

	return Metadata{
		Date:        date,
		Description: strings.TrimSpace(desc),
	}, nil
}

// BaseName strips the extension and page suffix but keeps the date
func (DatedFilename) BaseName(filename string) string {
	return stripPageSuffix(filepath.Base(filename))
}

// stripPageSuffix removes the extension and then any "- Page N of M..." tail
func stripPageSuffix(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return pageSuffix.ReplaceAllString(name, "")
}
