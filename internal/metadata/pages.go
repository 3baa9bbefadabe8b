package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ScanExt is the extension of page scans, matched case-insensitively
const ScanExt = ".png"

// PageResolver groups the scanned pages of one letter.
//
// Pages are ordered by filename. That is only the physical page order when
// page numbers are single-digit or zero-padded: "Page 10 of 12" sorts before
// "Page 2 of 12".
type PageResolver struct {
	parser  Parser
	scanDir string

	once  sync.Once
	names []string
	err   error
}

// NewPageResolver creates a resolver over scanDir
func NewPageResolver(parser Parser, scanDir string) *PageResolver {
	return &PageResolver{parser: parser, scanDir: scanDir}
}

// Resolve returns the scans whose base name starts with baseName, sorted by
// filename. References are relative to the scan directory. No match is an
// empty slice, not an error.
func (r *PageResolver) Resolve(baseName string) ([]string, error) {
	names, err := r.list()
	if err != nil {
		return nil, err
	}

	var pages []string
	for _, name := range names {
		if strings.HasPrefix(r.parser.BaseName(name), baseName) {
			pages = append(pages, name)
		}
	}
	sort.Strings(pages)

	return pages, nil
}

// list reads the scan directory once
func (r *PageResolver) list() ([]string, error) {
	r.once.Do(func() {
		entries, err := os.ReadDir(r.scanDir)
		if err != nil {
			r.err = fmt.Errorf("read scan dir: %w", err)
			return
		}

		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ScanExt) {
				continue
			}
			r.names = append(r.names, e.Name())
		}
	})

	return r.names, r.err
}
